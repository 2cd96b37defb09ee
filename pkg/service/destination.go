package service

import (
	"net"
	"net/url"
	"strings"

	"shortener/pkg/storage"
)

// NormalizeDestination cleans a user-supplied destination. A value without
// a scheme is treated as https. Only absolute http(s) URLs pointing at
// public hosts are accepted.
func NormalizeDestination(raw string) (string, error) {
	dest := strings.TrimSpace(raw)
	if dest == "" {
		return "", invalidDestination("destination is required")
	}
	if !strings.Contains(dest, "://") {
		dest = "https://" + dest
	}
	if len(dest) > storage.MaxDestinationLength {
		return "", invalidDestination("destination must be at most 2048 characters")
	}

	u, err := url.ParseRequestURI(dest)
	if err != nil {
		return "", invalidDestination("destination is not a valid URL")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", invalidDestination("only http and https destinations are allowed")
	}
	host := u.Hostname()
	if host == "" {
		return "", invalidDestination("destination must include a host")
	}

	// SSRF guard
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
			ip.IsMulticast() || ip.IsUnspecified() {
			return "", invalidDestination("private, loopback or reserved addresses are not allowed")
		}
	} else {
		lower := strings.ToLower(host)
		if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
			return "", invalidDestination("localhost is not allowed")
		}
	}

	if strings.Contains(strings.ToLower(dest), "javascript:") {
		return "", invalidDestination("disallowed content in destination")
	}
	return dest, nil
}

func invalidDestination(msg string) error {
	return &ValidationError{Field: "destination", Message: msg, Err: ErrInvalidURL}
}
