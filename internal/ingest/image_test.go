package ingest

import (
	"bytes"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	apperrors "bambu-slicer-advisor/internal/errors"

	"github.com/stretchr/testify/require"
)

var (
	pngBytes = []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89,
	}
	jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01}
	webpBytes = append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), make([]byte, 24)...)
	heicBytes = append([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c', 0x00, 0x00, 0x00, 0x00, 'm', 'i', 'f', '1', 'h', 'e', 'i', 'c'}, make([]byte, 16)...)
)

func TestFromBytes_SupportedTypes(t *testing.T) {
	ing := New(0)
	tests := []struct {
		name     string
		mime     string
		data     []byte
		wantMIME string
	}{
		{"png", "image/png", pngBytes, "image/png"},
		{"jpeg", "image/jpeg", jpegBytes, "image/jpeg"},
		{"jpg alias", "image/jpg", jpegBytes, "image/jpeg"},
		{"webp", "image/webp", webpBytes, "image/webp"},
		{"heic", "image/heic", heicBytes, "image/heic"},
		{"heif", "image/heif", heicBytes, "image/heif"},
		{"uppercase with params", "IMAGE/PNG; charset=binary", pngBytes, "image/png"},
		{"sniffed when undeclared", "", pngBytes, "image/png"},
		{"sniffed when octet-stream", "application/octet-stream", jpegBytes, "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ing.FromBytes(tt.data, tt.mime)
			require.NoError(t, err)
			require.Equal(t, tt.wantMIME, img.MIMEType)
			require.NotEmpty(t, img.Base64)
			require.Equal(t, base64.StdEncoding.EncodeToString(tt.data), img.Base64)
			require.Equal(t, tt.data, img.Data)
		})
	}
}

func TestFromBytes_Unsupported(t *testing.T) {
	ing := New(0)
	tests := []struct {
		name string
		mime string
		data []byte
	}{
		{"plain text", "text/plain", []byte("hello")},
		{"pdf", "application/pdf", []byte("%PDF-1.4\n")},
		{"gif not allowed", "image/gif", []byte("GIF89a\x01\x00\x01\x00")},
		{"svg not allowed", "image/svg+xml", []byte("<svg></svg>")},
		{"video", "video/mp4", jpegBytes},
		{"undeclared text", "", []byte("just some text")},
		{"declared png but text content", "image/png", []byte("definitely not an image")},
		{"declared png but gif content", "image/png", []byte("GIF89a\x01\x00\x01\x00")},
		{"empty payload", "image/png", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ing.FromBytes(tt.data, tt.mime)
			require.Error(t, err)
			require.Nil(t, img)
			require.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnsupportedMediaType), "got %v", err)
			require.Equal(t, http.StatusUnsupportedMediaType, apperrors.GetStatusCode(err))
		})
	}
}

func TestFromBytes_MislabeledImageUsesDetectedType(t *testing.T) {
	ing := New(0)

	img, err := ing.FromBytes(jpegBytes, "image/png")
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", img.MIMEType)

	img, err = ing.FromBytes(pngBytes, "image/webp")
	require.NoError(t, err)
	require.Equal(t, "image/png", img.MIMEType)

	img, err = ing.FromBytes(heicBytes, "image/heif")
	require.NoError(t, err)
	require.Equal(t, "image/heif", img.MIMEType)
}

func TestFromBytes_TooLarge(t *testing.T) {
	ing := New(16)
	_, err := ing.FromBytes(pngBytes, "image/png")
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestFromDataURL(t *testing.T) {
	ing := New(0)
	encoded := base64.StdEncoding.EncodeToString(pngBytes)

	img, err := ing.FromDataURL("data:image/png;base64,"+encoded, "")
	require.NoError(t, err)
	require.Equal(t, "image/png", img.MIMEType)
	require.Equal(t, encoded, img.Base64)

	img, err = ing.FromDataURL(encoded, "image/png")
	require.NoError(t, err)
	require.Equal(t, pngBytes, img.Data)

	_, err = ing.FromDataURL("data:text/plain;base64,"+base64.StdEncoding.EncodeToString([]byte("hi there")), "")
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnsupportedMediaType))

	_, err = ing.FromDataURL("data:image/png;base64,@@@", "")
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = ing.FromDataURL("data:image/png,rawdata", "")
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestFromMultipart(t *testing.T) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("image", "benchy.png")
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	fh := req.MultipartForm.File["image"][0]

	img, err := New(0).FromMultipart(fh)
	require.NoError(t, err)
	require.Equal(t, "image/png", img.MIMEType)

	_, err = New(0).FromMultipart(nil)
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "preview.JPG")
	require.NoError(t, os.WriteFile(imgPath, jpegBytes, 0o600))
	txtPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("layer height 0.2"), 0o600))

	ing := New(0)
	img, err := ing.FromFile(imgPath)
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", img.MIMEType)

	_, err = ing.FromFile(txtPath)
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnsupportedMediaType))

	_, err = ing.FromFile(filepath.Join(dir, "missing.png"))
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = ing.FromFile(dir)
	require.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
