package gallery

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"foto-produk-maker/internal/session"
)

const filenamePrefix = "foto-produk-"

var ErrNotFound = errors.New("result not found")

// Source is the read side of a session.
type Source interface {
	Results() []session.GenerationResult
	Result(id string) (session.GenerationResult, bool)
}

type Entry struct {
	ID         string    `json:"id"`
	ImageRef   string    `json:"image_ref"`
	PromptUsed string    `json:"prompt_used"`
	CreatedAt  time.Time `json:"created_at"`
	LocalTime  string    `json:"local_time"`
	Filename   string    `json:"filename"`
}

type Download struct {
	Filename string
	MimeType string
	Data     []byte
}

// Log is a read-only, newest-first view over a session's results.
type Log struct {
	src Source
	loc *time.Location
}

func New(src Source, loc *time.Location) *Log {
	if loc == nil {
		loc = time.Local
	}
	return &Log{src: src, loc: loc}
}

func (l *Log) List() []Entry {
	results := l.src.Results()
	out := make([]Entry, 0, len(results))
	for _, r := range results {
		out = append(out, Entry{
			ID:         r.ID,
			ImageRef:   r.ImageRef,
			PromptUsed: r.PromptUsed,
			CreatedAt:  r.CreatedAt,
			LocalTime:  r.CreatedAt.In(l.loc).Format("15:04:05"),
			Filename:   Filename(r.ID, mimeOf(r.ImageRef)),
		})
	}
	return out
}

func (l *Log) Len() int {
	return len(l.src.Results())
}

// Export returns the bytes of one result under its download filename.
func (l *Log) Export(id string) (Download, error) {
	r, ok := l.src.Result(id)
	if !ok {
		return Download{}, ErrNotFound
	}

	mimeType, data, err := decodeDataURI(r.ImageRef)
	if err != nil {
		return Download{}, fmt.Errorf("export %s: %w", id, err)
	}

	return Download{
		Filename: Filename(r.ID, mimeType),
		MimeType: mimeType,
		Data:     data,
	}, nil
}

// Filename is deterministic in the result id.
func Filename(id, mimeType string) string {
	return filenamePrefix + id + extension(mimeType)
}

func extension(mimeType string) string {
	switch mimeType {
	case "", "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	}
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}

func mimeOf(dataURI string) string {
	mimeType, _, err := splitDataURI(dataURI)
	if err != nil {
		return ""
	}
	return mimeType
}

func decodeDataURI(dataURI string) (string, []byte, error) {
	mimeType, payload, err := splitDataURI(dataURI)
	if err != nil {
		return "", nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode base64: %w", err)
	}
	return mimeType, data, nil
}

func splitDataURI(value string) (string, string, error) {
	value = strings.TrimSpace(value)
	const prefix = "data:"
	if !strings.HasPrefix(value, prefix) {
		return "", "", errors.New("not a data uri")
	}

	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return "", "", errors.New("invalid data uri")
	}

	meta := strings.TrimPrefix(parts[0], prefix)
	mimeType := strings.TrimSpace(strings.Split(meta, ";")[0])
	if mimeType == "" {
		mimeType = "image/png"
	}
	return mimeType, parts[1], nil
}
