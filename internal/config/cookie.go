package config

import "net/http"

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

// CookieTemplate describes every attribute of a cookie except its value.
type CookieTemplate struct {
	Name     string         `yaml:"name"`
	Path     string         `yaml:"path"`
	Domain   string         `yaml:"domain"`
	MaxAge   int            `yaml:"maxAge"`
	Secure   bool           `yaml:"secure"`
	HTTPOnly bool           `yaml:"httpOnly"`
	SameSite CookieSameSite `yaml:"sameSite"`
}

func (ct *CookieTemplate) ToCookie(value string) *http.Cookie {
	var sameSite http.SameSite
	switch ct.SameSite {
	case CookieSameSiteNone:
		sameSite = http.SameSiteNoneMode
	case CookieSameSiteLax:
		sameSite = http.SameSiteLaxMode
	case CookieSameSiteStrict:
		sameSite = http.SameSiteStrictMode
	}

	return &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   ct.Secure,
		HttpOnly: ct.HTTPOnly,
		SameSite: sameSite,
	}
}

// ToExpiredCookie returns a cookie that instructs the browser to drop
// the stored value, used on logout.
func (ct *CookieTemplate) ToExpiredCookie() *http.Cookie {
	cookie := ct.ToCookie("")
	cookie.MaxAge = -1

	return cookie
}
