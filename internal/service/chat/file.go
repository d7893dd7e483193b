package chat

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFile is returned for uploads whose extension is not offered by the UI.
var ErrUnsupportedFile = errors.New("unsupported file type, use .txt, .pdf or .csv")

// AllowedExtensions lists the file types offered for upload. The restriction is
// advisory: content is always decoded as raw text whatever the extension.
var AllowedExtensions = []string{".txt", ".pdf", ".csv"}

// CheckFileName reports ErrUnsupportedFile unless name carries an allowed extension.
func CheckFileName(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return ErrUnsupportedFile
}

// AcceptAttr renders AllowedExtensions for an HTML file input.
func AcceptAttr() string {
	return strings.Join(AllowedExtensions, ",")
}
