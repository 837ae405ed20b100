package wire

import (
	"strconv"
	"strings"
)

// Cookie is one name/value pair from a parsed Cookie header, or one
// Set-Cookie response directive.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// ParseCookies decodes a request's Cookie header into individual pairs.
// No session store is implied; this is a parse/format helper only.
func ParseCookies(header string) []Cookie {
	var out []Cookie
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		out = append(out, Cookie{Name: part[:eq], Value: part[eq+1:]})
	}
	return out
}

// SetCookieHeader formats a Set-Cookie response header value.
func SetCookieHeader(c Cookie) string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}
	if c.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(c.Domain)
	}
	if c.MaxAge != 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite)
	}
	return b.String()
}

// Cookies parses the request's Cookie header, if any.
func (r *Request) Cookies() []Cookie {
	return ParseCookies(r.Header.GetString("Cookie"))
}

// AddSetCookie appends a Set-Cookie header to a response.
func (r *Response) AddSetCookie(c Cookie) {
	r.Header.AddString("Set-Cookie", SetCookieHeader(c))
}
