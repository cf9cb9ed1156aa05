package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"foto-produk-maker/internal/gallery"
	"foto-produk-maker/internal/imagefile"
	"foto-produk-maker/internal/prompt"
	"foto-produk-maker/internal/session"
	"foto-produk-maker/internal/settings"
)

const (
	noticeInvalidType = "Harap pilih file gambar."
	noticeTooLarge    = "Ukuran gambar melebihi batas."
	noticeNoImage     = "Pilih foto produk terlebih dahulu."
	noticeBusy        = "Permintaan lain sedang diproses."
)

type apiError struct {
	Error string `json:"error"`
}

type imageView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Preview  string `json:"preview"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

type stateResponse struct {
	SelectedImage      *imageView      `json:"selected_image"`
	Prompt             string          `json:"prompt"`
	AutoPromptInFlight bool            `json:"auto_prompt_in_flight"`
	GenerateInFlight   bool            `json:"generate_in_flight"`
	CanAutoPrompt      bool            `json:"can_auto_prompt"`
	CanGenerate        bool            `json:"can_generate"`
	Error              string          `json:"error,omitempty"`
	Results            []gallery.Entry `json:"results"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (s *Server) handleIndex(c echo.Context) error {
	prefs := settings.Resolve(c.Request())
	s.sessionFor(c)

	h := c.Response().Header()
	h.Set("Accept-CH", settings.HintHeader)
	h.Add("Vary", settings.HintHeader)

	var buf bytes.Buffer
	if err := s.page.Execute(&buf, prefs); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (s *Server) handleState(c echo.Context) error {
	return s.writeState(c, http.StatusOK, s.sessionFor(c))
}

func (s *Server) handleSelectImage(c echo.Context) error {
	sess := s.sessionFor(c)
	r := c.Request()

	// room for the multipart envelope on top of the image itself
	r.Body = http.MaxBytesReader(c.Response(), r.Body, s.maxUploadBytes+1<<20)

	header, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return c.JSON(http.StatusRequestEntityTooLarge, apiError{Error: noticeTooLarge})
		}
		return c.JSON(http.StatusBadRequest, apiError{Error: "missing image"})
	}

	file, err := header.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "failed to read image"})
	}
	defer file.Close()

	img, err := imagefile.Decode(r.Context(), imagefile.Upload{
		Name:         header.Filename,
		DeclaredType: header.Header.Get("Content-Type"),
		Body:         file,
		MaxBytes:     s.maxUploadBytes,
	})
	switch {
	case errors.Is(err, imagefile.ErrInvalidType):
		return c.JSON(http.StatusUnsupportedMediaType, apiError{Error: noticeInvalidType})
	case errors.Is(err, imagefile.ErrTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, apiError{Error: noticeTooLarge})
	case err != nil:
		s.logger.Warn("image decode failed", "session", sess.ID(), "err", err)
		return c.JSON(http.StatusBadRequest, apiError{Error: "failed to read image"})
	}

	sess.SelectImage(img)
	return s.writeState(c, http.StatusOK, sess)
}

func (s *Server) handleClearImage(c echo.Context) error {
	sess := s.sessionFor(c)
	sess.ClearImage()
	return s.writeState(c, http.StatusOK, sess)
}

func (s *Server) handleSetPrompt(c echo.Context) error {
	sess := s.sessionFor(c)

	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "invalid json"})
	}

	sess.SetPrompt(req.Prompt)
	return s.writeState(c, http.StatusOK, sess)
}

func (s *Server) handleAutoPrompt(c echo.Context) error {
	return s.runRequest(c, (*session.Session).RequestAutoPrompt)
}

func (s *Server) handleGenerate(c echo.Context) error {
	return s.runRequest(c, (*session.Session).RequestGenerate)
}

// runRequest keeps the remote call alive when the browser goes away; the
// outcome still lands in the session.
func (s *Server) runRequest(c echo.Context, op func(*session.Session, context.Context) error) error {
	sess := s.sessionFor(c)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.requestTimeout)
	defer cancel()

	err := op(sess, ctx)
	switch {
	case errors.Is(err, session.ErrNoImage):
		return c.JSON(http.StatusBadRequest, apiError{Error: noticeNoImage})
	case errors.Is(err, session.ErrBusy):
		return c.JSON(http.StatusConflict, apiError{Error: noticeBusy})
	case err != nil && !errors.Is(err, session.ErrAutoPromptFailed) && !errors.Is(err, session.ErrGenerateFailed):
		s.logger.Error("session request failed", "session", sess.ID(), "err", err)
		return c.JSON(http.StatusInternalServerError, apiError{Error: "internal error"})
	}

	// remote failures are reported through the error slot
	return s.writeState(c, http.StatusOK, sess)
}

func (s *Server) handleResults(c echo.Context) error {
	sess := s.sessionFor(c)
	return c.JSON(http.StatusOK, gallery.New(sess, s.location).List())
}

func (s *Server) handleDownload(c echo.Context) error {
	sess := s.sessionFor(c)

	dl, err := gallery.New(sess, s.location).Export(c.Param("id"))
	if errors.Is(err, gallery.ErrNotFound) {
		return c.JSON(http.StatusNotFound, apiError{Error: "result not found"})
	}
	if err != nil {
		s.logger.Error("export failed", "session", sess.ID(), "err", err)
		return c.JSON(http.StatusInternalServerError, apiError{Error: "export failed"})
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", dl.Filename))
	return c.Blob(http.StatusOK, dl.MimeType, dl.Data)
}

func (s *Server) handleStyles(c echo.Context) error {
	return c.JSON(http.StatusOK, prompt.Presets())
}

func (s *Server) handleGetTheme(c echo.Context) error {
	return c.JSON(http.StatusOK, settings.Resolve(c.Request()))
}

func (s *Server) handleSetTheme(c echo.Context) error {
	var req themeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "invalid json"})
	}

	theme, err := settings.ParseTheme(req.Theme)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: err.Error()})
	}
	if err := s.themes.Write(c.Response(), theme); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, settings.Preferences{Theme: theme, Stored: true})
}

// sessionFor returns the caller's session, minting a cookie on first use.
func (s *Server) sessionFor(c echo.Context) *session.Session {
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		if id, err := uuid.Parse(strings.TrimSpace(cookie.Value)); err == nil {
			return s.sessions.GetOrCreate(id.String())
		}
	}

	id := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	// later lookups within the same request see the new id
	c.Request().AddCookie(&http.Cookie{Name: sessionCookieName, Value: id})
	return s.sessions.GetOrCreate(id)
}

func (s *Server) writeState(c echo.Context, status int, sess *session.Session) error {
	st := sess.Snapshot()

	resp := stateResponse{
		Prompt:             st.Prompt,
		AutoPromptInFlight: st.AutoPromptInFlight,
		GenerateInFlight:   st.GenerateInFlight,
		Error:              st.Error,
		Results:            gallery.New(sess, s.location).List(),
	}
	if img := st.SelectedImage; img != nil {
		resp.SelectedImage = &imageView{
			ID:       img.ID,
			Name:     img.Name,
			MimeType: img.MimeType,
			Preview:  img.Preview(),
			Width:    img.Width,
			Height:   img.Height,
		}
		resp.CanAutoPrompt = !st.Busy()
		resp.CanGenerate = !st.Busy()
	}
	return c.JSON(status, resp)
}
