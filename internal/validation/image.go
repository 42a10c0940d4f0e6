package validation

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// MaxImageBytes caps avatar and cover uploads.
const MaxImageBytes = 5 << 20

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// ValidateImage checks the extension and size of an uploaded image.
func ValidateImage(field string, fh *multipart.FileHeader) *RequestValidationError {
	if fh == nil {
		return NewFieldError(field, field+" is required")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !imageExts[ext] {
		return NewFieldError(field, fmt.Sprintf("%s must be a jpg, jpeg or png file", field))
	}
	if fh.Size > MaxImageBytes {
		return NewFieldError(field, fmt.Sprintf("%s must not exceed 5MB", field))
	}
	return nil
}
