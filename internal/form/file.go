package form

import (
	"context"
	"encoding/base64"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"eyecheck-web/internal/predict"
)

// NoFileSelected is the file label shown before any selection.
const NoFileSelected = "No file selected"

const octetStream = "application/octet-stream"

// File is a user-selected file held in memory for preview and submission.
type File struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

func (f File) upload() predict.Upload {
	return predict.Upload{
		Name:        f.Name,
		ContentType: f.ContentType,
		Data:        f.Data,
	}
}

// MediaType is the declared content type without parameters. Missing,
// unparsable or generic declarations fall back to sniffing the bytes.
func (f File) MediaType() string {
	if mt, _, err := mime.ParseMediaType(f.ContentType); err == nil && mt != octetStream {
		return mt
	}
	detected := mimetype.Detect(f.Data).String()
	if mt, _, err := mime.ParseMediaType(detected); err == nil {
		return mt
	}
	return octetStream
}

// DataURL encodes the whole file as a base64 data URL.
func DataURL(f File) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + 64 + base64.StdEncoding.EncodedLen(len(f.Data)))
	b.WriteString("data:")
	b.WriteString(f.MediaType())
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(f.Data))
	return b.String()
}

func readPreview(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	url := DataURL(f)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return url, nil
}
