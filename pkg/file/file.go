package file

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// Object describes a stored file.
type Object struct {
	Key      string
	Size     int64
	MIMEType string
	URL      string
}

// Storage is a flat key/blob store with public URLs.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// DetectMIMEType sniffs the content, ignoring any client-supplied type.
func DetectMIMEType(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	mt := http.DetectContentType(data)
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// IsImage reports whether the content sniffs as a raster image type.
func IsImage(data []byte) bool {
	_, ok := imageExtensions[DetectMIMEType(data)]
	return ok
}

// ExtensionFor picks the extension for a MIME type, falling back to the
// extension of filename.
func ExtensionFor(mimeType, filename string) string {
	if ext, ok := imageExtensions[mimeType]; ok {
		return ext
	}
	return strings.ToLower(filepath.Ext(SanitizeFilename(filename)))
}

// SanitizeFilename strips path components and NUL bytes.
// Returns "unnamed" for empty or special directory references.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)
	filename = strings.ReplaceAll(filename, "\x00", "")

	if filename == "." || filename == ".." || filename == "" || filename == "/" {
		filename = "unnamed"
	}
	return filename
}

// cleanKey normalises an object key and rejects traversal.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" || strings.Contains(key, "..") || strings.Contains(key, "\x00") {
		return "", ErrInvalidPath
	}
	return key, nil
}
