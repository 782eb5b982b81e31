package api

import (
	"net/http"
	"time"
)

// SameSite is the SameSite attribute of a cookie.
type SameSite string

const (
	SameSiteDefault SameSite = ""
	SameSiteLax     SameSite = "Lax"
	SameSiteStrict  SameSite = "Strict"
	SameSiteNone    SameSite = "None"
)

// Cookie is a name/value pair with optional Set-Cookie attributes.
// Request cookies only carry Name and Value.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	MaxAge   int
	Expires  time.Time
	Secure   bool
	HTTPOnly bool
	SameSite SameSite
}

// NewCookie returns a cookie with only a name and value.
func NewCookie(name, value string) Cookie {
	return Cookie{Name: name, Value: value}
}

// Equal reports whether two cookies carry the same name, value and attributes.
func (c Cookie) Equal(o Cookie) bool {
	return c.Name == o.Name &&
		c.Value == o.Value &&
		c.Path == o.Path &&
		c.Domain == o.Domain &&
		c.MaxAge == o.MaxAge &&
		c.Expires.Equal(o.Expires) &&
		c.Secure == o.Secure &&
		c.HTTPOnly == o.HTTPOnly &&
		c.SameSite == o.SameSite
}

// HTTP converts the cookie to its net/http form for Set-Cookie serialization.
func (c Cookie) HTTP() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		MaxAge:   c.MaxAge,
		Expires:  c.Expires,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	switch c.SameSite {
	case SameSiteLax:
		hc.SameSite = http.SameSiteLaxMode
	case SameSiteStrict:
		hc.SameSite = http.SameSiteStrictMode
	case SameSiteNone:
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

// CookieFromHTTP converts a net/http cookie.
func CookieFromHTTP(hc *http.Cookie) Cookie {
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Path:     hc.Path,
		Domain:   hc.Domain,
		MaxAge:   hc.MaxAge,
		Expires:  hc.Expires,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
	}
	switch hc.SameSite {
	case http.SameSiteLaxMode:
		c.SameSite = SameSiteLax
	case http.SameSiteStrictMode:
		c.SameSite = SameSiteStrict
	case http.SameSiteNoneMode:
		c.SameSite = SameSiteNone
	}
	return c
}

func cookiesEqual(a, b []Cookie) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
