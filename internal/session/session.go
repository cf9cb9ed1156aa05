package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"foto-produk-maker/internal/imagefile"
	"foto-produk-maker/internal/prompt"
)

// User-facing messages, one per failing operation.
const (
	MsgAutoPromptFailed = "Gagal menghasilkan prompt otomatis. Silakan coba lagi."
	MsgGenerateFailed   = "Gagal mengedit foto. Pastikan koneksi internet stabil dan coba lagi."
)

const (
	OpAutoPrompt = "auto_prompt"
	OpGenerate   = "generate"

	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeStale  = "stale"
)

var (
	ErrNoImage          = errors.New("no image selected")
	ErrBusy             = errors.New("another request is in flight")
	ErrAutoPromptFailed = errors.New("auto prompt failed")
	ErrGenerateFailed   = errors.New("generate failed")
)

// GenerationClient is the remote multimodal service.
type GenerationClient interface {
	DescribeAndPrompt(ctx context.Context, imageBase64, mimeType string) (string, error)
	Transform(ctx context.Context, imageBase64, mimeType, prompt string) (string, error)
}

// Observer is told about every request that reached the client.
type Observer interface {
	ObserveRequest(op, outcome string, d time.Duration)
}

type GenerationResult struct {
	ID            string    `json:"id"`
	ImageRef      string    `json:"image_ref"`
	PromptUsed    string    `json:"prompt_used"`
	SourceImageID string    `json:"source_image_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// State is a point-in-time copy of a session.
type State struct {
	SelectedImage      *imagefile.ImageFile
	Prompt             string
	AutoPromptInFlight bool
	GenerateInFlight   bool
	Results            []GenerationResult
	Error              string
}

// Busy reports whether both triggers must be disabled.
func (s State) Busy() bool {
	return s.AutoPromptInFlight || s.GenerateInFlight
}

type Options struct {
	Client   GenerationClient
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

type Session struct {
	id       string
	client   GenerationClient
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu                 sync.Mutex
	selected           *imagefile.ImageFile
	selection          uint64
	prompt             string
	autoPromptInFlight bool
	generateInFlight   bool
	results            []GenerationResult
	errMsg             string
	lastActivity       time.Time
}

func New(id string, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	return &Session{
		id:           id,
		client:       opts.Client,
		observer:     opts.Observer,
		logger:       logger.With("session", id),
		now:          now,
		newID:        newID,
		lastActivity: now(),
	}
}

func (s *Session) ID() string {
	return s.id
}

// SelectImage replaces the selection and clears the error slot. Prompt and
// results are kept so a prompt can be reused across images.
func (s *Session) SelectImage(img imagefile.ImageFile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = &img
	s.selection++
	s.errMsg = ""
	s.touchLocked()
}

func (s *Session) ClearImage() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = nil
	s.selection++
	s.errMsg = ""
	s.touchLocked()
}

func (s *Session) SetPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prompt = text
	s.touchLocked()
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Prompt:             s.prompt,
		AutoPromptInFlight: s.autoPromptInFlight,
		GenerateInFlight:   s.generateInFlight,
		Results:            append([]GenerationResult(nil), s.results...),
		Error:              s.errMsg,
	}
	if s.selected != nil {
		img := *s.selected
		st.SelectedImage = &img
	}
	return st
}

func (s *Session) Results() []GenerationResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]GenerationResult(nil), s.results...)
}

func (s *Session) Result(id string) (GenerationResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.results {
		if r.ID == id {
			return r, true
		}
	}
	return GenerationResult{}, false
}

// RequestAutoPrompt replaces the prompt with one written by the model for
// the selected image.
func (s *Session) RequestAutoPrompt(ctx context.Context) error {
	s.mu.Lock()
	img, token, err := s.beginLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.autoPromptInFlight = true
	s.mu.Unlock()

	start := time.Now()
	text, callErr := s.client.DescribeAndPrompt(ctx, img.Encoded, img.MimeType)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.autoPromptInFlight = false
	s.touchLocked()

	if token != s.selection {
		s.logger.Info("auto prompt completed for a replaced image", "image", img.ID, "err", callErr)
		s.observe(OpAutoPrompt, OutcomeStale, time.Since(start))
		return nil
	}

	if callErr != nil {
		s.errMsg = MsgAutoPromptFailed
		s.logger.Error("auto prompt failed", "image", img.ID, "err", callErr)
		s.observe(OpAutoPrompt, OutcomeFailed, time.Since(start))
		return fmt.Errorf("%w: %w", ErrAutoPromptFailed, callErr)
	}

	s.prompt = text
	s.observe(OpAutoPrompt, OutcomeOK, time.Since(start))
	return nil
}

// RequestGenerate re-renders the selected image and prepends the result.
func (s *Session) RequestGenerate(ctx context.Context) error {
	s.mu.Lock()
	img, token, err := s.beginLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.generateInFlight = true
	effective := prompt.Effective(s.prompt)
	s.mu.Unlock()

	start := time.Now()
	imageRef, callErr := s.client.Transform(ctx, img.Encoded, img.MimeType, effective)
	if callErr == nil && imageRef == "" {
		callErr = errors.New("empty image payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generateInFlight = false
	s.touchLocked()
	stale := token != s.selection

	if callErr != nil {
		outcome := OutcomeFailed
		if stale {
			outcome = OutcomeStale
		} else {
			s.errMsg = MsgGenerateFailed
		}
		s.logger.Error("generate failed", "image", img.ID, "stale", stale, "err", callErr)
		s.observe(OpGenerate, outcome, time.Since(start))
		if stale {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrGenerateFailed, callErr)
	}

	createdAt := s.now()
	if len(s.results) > 0 && createdAt.Before(s.results[0].CreatedAt) {
		createdAt = s.results[0].CreatedAt
	}

	result := GenerationResult{
		ID:            s.newID(),
		ImageRef:      imageRef,
		PromptUsed:    effective,
		SourceImageID: img.ID,
		CreatedAt:     createdAt,
	}
	s.results = append([]GenerationResult{result}, s.results...)

	if stale {
		s.logger.Info("generate completed for a replaced image", "image", img.ID, "result", result.ID)
		s.observe(OpGenerate, OutcomeStale, time.Since(start))
		return nil
	}
	s.observe(OpGenerate, OutcomeOK, time.Since(start))
	return nil
}

// beginLocked checks the shared preconditions of both requests and clears
// the error slot when the request may start.
func (s *Session) beginLocked() (imagefile.ImageFile, uint64, error) {
	if s.selected == nil {
		return imagefile.ImageFile{}, 0, ErrNoImage
	}
	if s.autoPromptInFlight || s.generateInFlight {
		return imagefile.ImageFile{}, 0, ErrBusy
	}
	if s.client == nil {
		return imagefile.ImageFile{}, 0, errors.New("generation client is nil")
	}

	s.errMsg = ""
	s.touchLocked()
	return *s.selected, s.selection, nil
}

func (s *Session) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoPromptInFlight || s.generateInFlight
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

func (s *Session) touchLocked() {
	s.lastActivity = s.now()
}

func (s *Session) observe(op, outcome string, d time.Duration) {
	if s.observer != nil {
		s.observer.ObserveRequest(op, outcome, d)
	}
}
