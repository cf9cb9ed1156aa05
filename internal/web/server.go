package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"foto-produk-maker/internal/imagefile"
	"foto-produk-maker/internal/metrics"
	"foto-produk-maker/internal/session"
	"foto-produk-maker/internal/settings"
)

//go:embed static/*
var staticFS embed.FS

const sessionCookieName = "fpm_session"

type Options struct {
	Sessions       *session.Store
	Metrics        *metrics.Collector
	Logger         *slog.Logger
	MaxUploadBytes int64
	RequestTimeout time.Duration
	CookieSecure   bool
	Location       *time.Location
}

type Server struct {
	echo           *echo.Echo
	sessions       *session.Store
	metrics        *metrics.Collector
	logger         *slog.Logger
	page           *template.Template
	themes         settings.Writer
	maxUploadBytes int64
	requestTimeout time.Duration
	cookieSecure   bool
	location       *time.Location
}

func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = imagefile.DefaultMaxBytes
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 240 * time.Second
	}

	page, err := template.ParseFS(staticFS, "static/index.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		echo:           echo.New(),
		sessions:       opts.Sessions,
		metrics:        opts.Metrics,
		logger:         logger,
		page:           page,
		themes:         settings.Writer{Secure: opts.CookieSecure},
		maxUploadBytes: maxUpload,
		requestTimeout: timeout,
		cookieSecure:   opts.CookieSecure,
		location:       opts.Location,
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) routes() error {
	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.withLogging)

	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		return err
	}
	e.StaticFS("/static", assets)

	e.GET("/", s.handleIndex)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := e.Group("/api")
	api.GET("/session", s.handleState)
	api.POST("/session/image", s.handleSelectImage)
	api.DELETE("/session/image", s.handleClearImage)
	api.PUT("/session/prompt", s.handleSetPrompt)
	api.POST("/session/auto-prompt", s.handleAutoPrompt)
	api.POST("/session/generate", s.handleGenerate)
	api.GET("/results", s.handleResults)
	api.GET("/results/:id/download", s.handleDownload)
	api.GET("/styles", s.handleStyles)
	api.GET("/settings/theme", s.handleGetTheme)
	api.PUT("/settings/theme", s.handleSetTheme)
	return nil
}

func (s *Server) withLogging(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.logger.Info("http",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"status", c.Response().Status,
			"dur_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}
}
