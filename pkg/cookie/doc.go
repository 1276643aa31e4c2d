// Package cookie sets and reads HTTP cookies with shared defaults, optionally
// signing values with HMAC-SHA256 so clients cannot forge them.
//
// Signed values use pkg/token, so the same key material signs cookies and
// other tokens. Several keys may be configured: the first signs, all verify,
// which allows rotation without logging everyone out.
//
//	m, err := cookie.New([][]byte{key}, cookie.WithSecure(true))
//	_ = m.SetSigned(w, "client_id", id)
//	id, err := m.GetSigned(r, "client_id")
package cookie
