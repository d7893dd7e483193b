package upload

import (
	"errors"
	"io"
	"net/http"
	"strings"

	chatService "github.com/zhouzirui/filechat/backend/internal/service/chat"
)

// ErrMissing is returned when the request carries no file in the field.
var ErrMissing = errors.New("file is required")

// ErrTooLarge is returned when the request body exceeds the upload cap.
var ErrTooLarge = errors.New("file too large")

// File is one uploaded file, content still raw.
type File struct {
	Name string
	Data []byte
}

// Read reads the multipart file field, enforcing the extension rule and the
// optional size cap (maxBytes <= 0 means unlimited). It also returns the HTTP
// status matching the error.
func Read(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) (File, int, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		if tooLarge(err) {
			return File{}, http.StatusRequestEntityTooLarge, ErrTooLarge
		}
		return File{}, http.StatusBadRequest, ErrMissing
	}
	defer file.Close()

	if header.Filename == "" {
		return File{}, http.StatusBadRequest, ErrMissing
	}
	if err := chatService.CheckFileName(header.Filename); err != nil {
		return File{}, http.StatusUnsupportedMediaType, err
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		if tooLarge(err) {
			return File{}, http.StatusRequestEntityTooLarge, ErrTooLarge
		}
		return File{}, http.StatusBadRequest, errors.New("failed to read file")
	}
	return File{Name: header.Filename, Data: raw}, http.StatusOK, nil
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}
