// Package file stores uploaded avatars on the local filesystem or in an
// S3-compatible bucket.
//
// Storage is the backend contract; Avatars sits on top of it, checks that an
// upload is an image within the size limit, and places it under a key that
// cannot collide or escape the storage root.
//
//	store, _ := file.NewLocalStorage("./uploads", "/uploads/")
//	avatars := file.NewAvatars(store, file.WithMaxAvatarSize(2<<20))
//	obj, err := avatars.Upload(ctx, accountID, "me.png", data)
//	// obj.URL == "/uploads/avatars/<account>/<uuid>.png"
package file
