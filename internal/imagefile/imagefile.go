package imagefile

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxBytes matches the limit advertised by the upload widget.
const DefaultMaxBytes = 10 << 20

var (
	ErrInvalidType = errors.New("file is not an image")
	ErrTooLarge    = errors.New("image is too large")
	ErrEmpty       = errors.New("image is empty")
)

// ImageFile is one user-selected image in both of its representations.
type ImageFile struct {
	ID       string
	Name     string
	MimeType string
	Raw      []byte
	Encoded  string
	Width    int
	Height   int
}

// Preview returns the displayable data URI.
func (f ImageFile) Preview() string {
	return fmt.Sprintf("data:%s;base64,%s", f.MimeType, f.Encoded)
}

type Upload struct {
	Name         string
	DeclaredType string
	Body         io.Reader
	MaxBytes     int64
}

// Decode reads an upload into an ImageFile. Nothing is returned until the
// whole body has been read and encoded.
func Decode(ctx context.Context, up Upload) (ImageFile, error) {
	if up.Body == nil {
		return ImageFile{}, ErrEmpty
	}

	maxBytes := up.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	mimeType := normalizeType(up.DeclaredType)
	if mimeType != "" && mimeType != "application/octet-stream" && !isImageType(mimeType) {
		return ImageFile{}, ErrInvalidType
	}

	raw, err := readAll(ctx, io.LimitReader(up.Body, maxBytes+1))
	if err != nil {
		return ImageFile{}, fmt.Errorf("read image: %w", err)
	}
	if len(raw) == 0 {
		return ImageFile{}, ErrEmpty
	}
	if int64(len(raw)) > maxBytes {
		return ImageFile{}, ErrTooLarge
	}

	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeType(http.DetectContentType(raw))
	}
	if !isImageType(mimeType) {
		return ImageFile{}, ErrInvalidType
	}

	return build(up.Name, mimeType, raw), nil
}

// FromBase64 builds an ImageFile from an already encoded payload, with or
// without a data URI prefix.
func FromBase64(name, mimeType, data string) (ImageFile, error) {
	data = strings.TrimSpace(data)
	if idx := strings.IndexByte(data, ','); strings.HasPrefix(data, "data:") && idx >= 0 {
		meta := strings.TrimPrefix(data[:idx], "data:")
		if mimeType == "" {
			mimeType = strings.SplitN(meta, ";", 2)[0]
		}
		data = data[idx+1:]
	}
	if data == "" {
		return ImageFile{}, ErrEmpty
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return ImageFile{}, fmt.Errorf("decode base64: %w", err)
	}

	mimeType = normalizeType(mimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = normalizeType(http.DetectContentType(raw))
	}
	if !isImageType(mimeType) {
		return ImageFile{}, ErrInvalidType
	}

	return build(name, mimeType, raw), nil
}

func build(name, mimeType string, raw []byte) ImageFile {
	f := ImageFile{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(name),
		MimeType: mimeType,
		Raw:      raw,
		Encoded:  base64.StdEncoding.EncodeToString(raw),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(raw)); err == nil {
		f.Width = cfg.Width
		f.Height = cfg.Height
	}
	return f
}

func readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32<<10)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		buf.Write(chunk[:n])
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func normalizeType(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, ";") {
		value = strings.TrimSpace(strings.SplitN(value, ";", 2)[0])
	}
	return strings.ToLower(value)
}

func isImageType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}
