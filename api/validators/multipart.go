package validators

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// multipartOverhead covers the non-file parts of a checkout form.
const multipartOverhead = 1 << 20

// UploadedFile is a single file part read fully into memory.
type UploadedFile struct {
	Filename string
	Size     int64
	Content  []byte
}

// ParseMultipart bounds the request body and parses the form.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxFileBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxFileBytes+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body too large").
				WithDetails(map[string]any{"maxBytes": maxFileBytes})
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form")
	}
	return nil
}

// DecodeFormJSON decodes and validates a JSON document carried in a form field.
func DecodeFormJSON(r *http.Request, field string, dest any) error {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{field: "is required"})
	}
	return decodeStrict(strings.NewReader(raw), field, dest)
}

// FormFile returns the named file part, or nil when it is absent.
func FormFile(r *http.Request, field string) (*UploadedFile, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read "+field)
	}
	return &UploadedFile{
		Filename: header.Filename,
		Size:     int64(buf.Len()),
		Content:  buf.Bytes(),
	}, nil
}
