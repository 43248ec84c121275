// Package metadata records where a request came from so activity log lines
// can name the client.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type clientKey struct{}

// Client is the caller's network address and user agent. Device is a short
// "<browser> on <os>" summary of the user agent.
type Client struct {
	IP        string
	UserAgent string
	Device    string
}

// ClientMetadata stores the request's Client in its context.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.UserAgent()
		ctx := WithClient(r.Context(), Client{IP: ClientIPFromRequest(r), UserAgent: ua, Device: DeviceFromUserAgent(ua)})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the stored Client, or the zero value outside a request.
func ClientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c
}

// ClientIPFromRequest prefers the first X-Forwarded-For hop, then X-Real-IP,
// then the connection's remote address.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// DeviceFromUserAgent summarizes ua, e.g. "Firefox on Linux x86_64". Bots
// and unparseable agents are reported as such.
func DeviceFromUserAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "unknown"
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		return "bot"
	}
	browser, _ := parsed.Browser()
	os := parsed.OS()
	switch {
	case browser == "" && os == "":
		return "unknown"
	case os == "":
		return browser
	case browser == "":
		return os
	}
	device := browser + " on " + os
	if parsed.Mobile() {
		device += " (mobile)"
	}
	return device
}
