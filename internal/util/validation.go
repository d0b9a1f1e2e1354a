// Package util holds address and URL checks shared by config, the webhook
// handler and the mail adapter.
package util

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
)

var (
	// ErrInvalidEmail marks an address that cannot be used as a recipient or
	// sender.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidURL marks a provider base url that is not http(s).
	ErrInvalidURL = errors.New("invalid url")
)

// NormalizeEmail accepts a bare address ("ann@example.com") and returns it
// trimmed and lowercased. Display names and address lists are rejected, which
// keeps user input like a ?to= parameter from smuggling extra recipients.
func NormalizeEmail(value string) (string, error) {
	addr, err := ParseSender(value)
	if err != nil {
		return "", err
	}
	if addr.Name != "" || addr.Address != strings.TrimSpace(value) {
		return "", fmt.Errorf("%w: %q is not a bare address", ErrInvalidEmail, value)
	}
	return strings.ToLower(addr.Address), nil
}

// ParseSender parses a single RFC 5322 address that may carry a display name,
// such as the MAIL_FROM identity "Leads <alerts@example.com>".
func ParseSender(value string) (*mail.Address, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: value is empty", ErrInvalidEmail)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return addr, nil
}

// AddressDomain returns the lowercased domain of an address or sender
// identity, or "" when none can be found.
func AddressDomain(value string) string {
	addr := strings.TrimSpace(value)
	if parsed, err := ParseSender(value); err == nil {
		addr = parsed.Address
	}
	at := strings.LastIndexByte(addr, '@')
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(strings.Trim(addr[at+1:], "<> "))
}

// ValidateHTTPURL checks an http(s) base url and returns it without a
// trailing slash so paths can be appended directly.
func ValidateHTTPURL(value string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(value), "/")
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidURL)
	}
	u, err := url.Parse(trimmed)
	switch {
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	case u.Scheme != "http" && u.Scheme != "https":
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	case u.Host == "":
		return "", fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return trimmed, nil
}
