package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	apperrors "github.com/imedhamdi/mapmarket-backend/pkg/errors"
)

// Accepted content types for chat images, checked against sniffed bytes, not
// the client-declared header.
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ValidateImageUpload checks size and sniffed content type of an uploaded
// chat image before any storage call is made. Returns the detected content
// type and canonical extension on success.
func ValidateImageUpload(header *multipart.FileHeader, maxBytes int64) (contentType, ext string, err *apperrors.AppError) {
	if header == nil {
		return "", "", apperrors.ValidationRejected("image file is required")
	}
	if header.Size <= 0 {
		return "", "", apperrors.ValidationRejected("image file is empty")
	}
	if header.Size > maxBytes {
		return "", "", apperrors.ValidationRejected("image exceeds maximum allowed size")
	}

	file, openErr := header.Open()
	if openErr != nil {
		return "", "", apperrors.ValidationRejected("unable to read image file")
	}
	defer file.Close()

	// Sniff the real content type from the first 512 bytes.
	buf := make([]byte, 512)
	n, readErr := file.Read(buf)
	if readErr != nil && readErr != io.EOF {
		return "", "", apperrors.ValidationRejected("unable to read image file")
	}
	detected := http.DetectContentType(buf[:n])
	detected = strings.Split(detected, ";")[0]

	extension, ok := allowedImageTypes[detected]
	if !ok {
		return "", "", apperrors.ValidationRejected("unsupported image type (png, jpeg, webp, gif)")
	}

	return detected, extension, nil
}
