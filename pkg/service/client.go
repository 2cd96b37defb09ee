package service

import (
	"net"
	"net/url"
	"strings"

	"shortener/pkg/storage"
)

// ClientContext is the raw, unvalidated visitor metadata of one redirect.
type ClientContext struct {
	IP        string
	UserAgent string
	Referer   string
}

// ExtractClientIP prefers the first X-Forwarded-For entry and falls back
// to the connection's remote address.
func ExtractClientIP(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

// clickEvent builds the event row. Every metadata field is best effort:
// anything unusable is stored as NULL.
func (c ClientContext) clickEvent() *storage.ClickEvent {
	return &storage.ClickEvent{
		SourceIP:  normalizeIP(c.IP),
		UserAgent: normalizeUserAgent(c.UserAgent),
		Referer:   normalizeReferer(c.Referer),
	}
}

func normalizeIP(raw string) *string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return nil
	}
	s := ip.String()
	return &s
}

func normalizeUserAgent(raw string) *string {
	ua := strings.TrimSpace(raw)
	if ua == "" {
		return nil
	}
	if len(ua) > storage.MaxUserAgentLength {
		ua = ua[:storage.MaxUserAgentLength]
	}
	return &ua
}

func normalizeReferer(raw string) *string {
	ref := strings.TrimSpace(raw)
	if ref == "" || len(ref) > storage.MaxRefererLength {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil
	}
	return &ref
}
