package settings

import (
	"errors"
	"net/http"
	"strings"
)

const (
	CookieName = "theme"

	// HintHeader carries the OS-level color scheme preference.
	HintHeader = "Sec-CH-Prefers-Color-Scheme"

	cookieMaxAge = 365 * 24 * 60 * 60
)

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

var ErrInvalidTheme = errors.New("theme must be light or dark")

func ParseTheme(value string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(value))) {
	case Light:
		return Light, nil
	case Dark:
		return Dark, nil
	}
	return "", ErrInvalidTheme
}

func (t Theme) Toggle() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// Preferences is handed to the view layer once per render.
type Preferences struct {
	Theme Theme `json:"theme"`
	// Stored is false when the theme came from the OS hint or the default.
	Stored bool `json:"stored"`
}

func (p Preferences) Dark() bool {
	return p.Theme == Dark
}

// Resolve reads the stored theme, falling back to the client's color
// scheme hint and then to light.
func Resolve(r *http.Request) Preferences {
	if c, err := r.Cookie(CookieName); err == nil {
		if theme, err := ParseTheme(c.Value); err == nil {
			return Preferences{Theme: theme, Stored: true}
		}
	}

	hint := strings.Trim(strings.TrimSpace(r.Header.Get(HintHeader)), "\"")
	if strings.EqualFold(hint, string(Dark)) {
		return Preferences{Theme: Dark}
	}
	return Preferences{Theme: Light}
}

type Writer struct {
	Secure bool
}

// Write is the only place the stored theme changes.
func (wr Writer) Write(w http.ResponseWriter, theme Theme) error {
	if _, err := ParseTheme(string(theme)); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    string(theme),
		Path:     "/",
		MaxAge:   cookieMaxAge,
		HttpOnly: false,
		Secure:   wr.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
