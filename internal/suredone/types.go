package suredone

import "fmt"

// GenericFailureMessage is the outward-facing message used when a SureDone
// call fails and no refresh is available. The upstream wording is preserved
// separately on APIError so it is never lost.
const GenericFailureMessage = "Something went wrong, please try again."

// TenantConfig carries the per-call credentials for one SureDone account.
// It is an immutable value: token refresh produces a new TenantConfig rather
// than mutating shared client state, so concurrent calls cannot observe a
// half-updated header set.
type TenantConfig struct {
	Username string
	Token    string
	// Instance qualifies which store instance of a channel this tenant is
	// operating on (SureDone numbers extra channel instances from 2).
	Instance int
}

// WithToken returns a copy of the config carrying a fresh token.
func (t TenantConfig) WithToken(token string) TenantConfig {
	t.Token = token
	return t
}

// Channel identifies a SureDone sales channel for authorization flows.
type Channel string

const (
	ChannelEbay     Channel = "ebay"
	ChannelFacebook Channel = "facebook"
	ChannelGoogle   Channel = "google"
)

// Valid reports whether the channel is one the adapter can authorize.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEbay, ChannelFacebook, ChannelGoogle:
		return true
	}
	return false
}

// Tag returns the channel identifier SureDone expects for a given instance,
// e.g. "ebay" for the first instance and "ebay2" for the second.
func (c Channel) Tag(instance int) string {
	if instance <= 1 {
		return string(c)
	}
	return fmt.Sprintf("%s%d", c, instance)
}

// ErrorKind classifies API client failures so callers can pattern-match
// instead of null-checking.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindDecode    ErrorKind = "decode"
	KindAuth      ErrorKind = "auth"
	KindRemote    ErrorKind = "remote"
)

// APIError is the single error type surfaced by the SureDone client.
// Message holds the outward-facing text; Upstream keeps the exact wording
// SureDone returned.
type APIError struct {
	Kind     ErrorKind
	Message  string
	Upstream string
	Status   int
}

func (e *APIError) Error() string {
	if e.Upstream != "" && e.Upstream != e.Message {
		return fmt.Sprintf("suredone %s error: %s (upstream: %s)", e.Kind, e.Message, e.Upstream)
	}
	return fmt.Sprintf("suredone %s error: %s", e.Kind, e.Message)
}

// Envelope renders the fixed-shape error body Dropified callers branch on.
func (e *APIError) Envelope() map[string]any {
	return map[string]any{
		"result":  "error",
		"message": e.Message,
	}
}

// errorBody is SureDone's own error convention, nested inside JSON responses.
type errorBody struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}
