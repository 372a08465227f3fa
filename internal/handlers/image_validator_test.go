package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"testing"

	apperrors "github.com/imedhamdi/mapmarket-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// pngBytes is a minimal valid PNG signature followed by padding, enough for
// content sniffing.
func pngBytes(size int) []byte {
	b := make([]byte, size)
	copy(b, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'})
	return b
}

func multipartHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("image", filename)
	assert.NoError(t, err)
	_, err = fw.Write(content)
	assert.NoError(t, err)
	w.Close()

	req, err := http.NewRequest("POST", "/api/messages/image", &buf)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	assert.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["image"][0]
}

func TestValidateImageUpload_AcceptsSniffedPNG(t *testing.T) {
	// The declared filename lies; the sniffed bytes decide.
	header := multipartHeader(t, "photo.txt", pngBytes(1024))

	contentType, ext, appErr := ValidateImageUpload(header, 2<<20)
	assert.Nil(t, appErr)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, ".png", ext)
}

func TestValidateImageUpload_RejectsOversize(t *testing.T) {
	header := multipartHeader(t, "photo.png", pngBytes(2048))

	_, _, appErr := ValidateImageUpload(header, 1024)
	assert.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindValidationRejected, appErr.Kind)
}

func TestValidateImageUpload_RejectsNonImage(t *testing.T) {
	// A text payload renamed to .png does not pass the sniff.
	header := multipartHeader(t, "notes.png", []byte("ceci n'est pas une image, juste du texte brut"))

	_, _, appErr := ValidateImageUpload(header, 2<<20)
	assert.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindValidationRejected, appErr.Kind)
}

func TestValidateImageUpload_RejectsEmptyAndMissing(t *testing.T) {
	_, _, appErr := ValidateImageUpload(nil, 2<<20)
	assert.NotNil(t, appErr)

	header := multipartHeader(t, "empty.png", nil)
	_, _, appErr = ValidateImageUpload(header, 2<<20)
	assert.NotNil(t, appErr)
}
