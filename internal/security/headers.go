package security

import (
	"net/http"
	"strconv"
)

const defaultHSTSMaxAge = 31536000 // one year

// Headers configures common security headers for HTTP responses.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
}

// Middleware attaches standard security headers to each response. HSTS is
// only emitted on TLS connections so a misconfigured plain-HTTP deployment
// cannot pin browsers to https.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Enable {
			h.apply(w, r)
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) apply(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("X-Frame-Options", "DENY")
	hdr.Set("Referrer-Policy", "no-referrer")
	hdr.Set("Permissions-Policy", "geolocation=(), microphone=()")
	if !h.EnableHSTS || r.TLS == nil {
		return
	}
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	v := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		v += "; includeSubDomains"
	}
	hdr.Set("Strict-Transport-Security", v)
}
