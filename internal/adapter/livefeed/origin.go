package livefeed

import (
	"log/slog"
	"net/http"
	"net/url"
)

// NewCheckOrigin allows requests without an Origin header (non-browser
// clients) and from publicURL's origin. In development, localhost origins
// are allowed as well.
func NewCheckOrigin(publicURL string, isDevelopment bool) func(r *http.Request) bool {
	appOrigin := extractOrigin(publicURL)

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		if origin == "" {
			return true
		}

		if appOrigin != "" && origin == appOrigin {
			return true
		}

		if isDevelopment && isLocalhostOrigin(origin) {
			return true
		}

		slog.Warn("Live feed origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func extractOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}
