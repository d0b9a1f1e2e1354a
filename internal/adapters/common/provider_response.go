package common

import "unicode/utf8"

// DefaultRawBodyLimit caps the provider response body kept on a
// ProviderResponse.
const DefaultRawBodyLimit = 1024

// ProviderResponse is the normalized result of a single mail send.
type ProviderResponse struct {
	Status  string            `json:"status"`
	Code    *int              `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
	Raw     string            `json:"raw,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// ProviderID returns the provider assigned message id, if any.
func (r *ProviderResponse) ProviderID() string {
	if r == nil {
		return ""
	}
	return r.Meta["provider_id"]
}

// TruncateRaw trims raw to limit runes. A zero or negative limit yields "".
func TruncateRaw(raw string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(raw) <= limit {
		return raw
	}
	return string([]rune(raw)[:limit])
}
