// Package support resolves where live support conversations are handled and
// builds the degraded-mode payload the widget shows when a conversation
// cannot be opened.
//
// The provider strategy is resolved exactly once at construction from
// configuration, never per request: either the built-in pipeline (admins
// answer through this backend) or an external live-chat product reached via
// URL. A misconfigured external provider falls back to the pipeline so the
// guest always has a working path.
package support

import "strings"

// Provider modes.
const (
	ModePipeline = "pipeline"
	ModeExternal = "external"
)

// Recovery action identifiers offered when conversation creation fails.
// The widget renders exactly these three, in this order.
const (
	ActionRetry = "retry"
	ActionEmail = "email"
	ActionMenu  = "menu"
)

// Provider is the resolved live-support strategy. Immutable after Resolve.
type Provider struct {
	Mode        string `json:"mode"`
	ExternalURL string `json:"external_url,omitempty"`
}

// External reports whether conversations are handed off to an external
// product instead of the built-in pipeline.
func (p Provider) External() bool { return p.Mode == ModeExternal }

// Resolve picks the provider strategy from configuration. Unknown modes and
// external mode without a URL degrade to the pipeline.
func Resolve(mode, externalURL string) Provider {
	mode = strings.ToLower(strings.TrimSpace(mode))
	externalURL = strings.TrimSpace(externalURL)

	if mode == ModeExternal && externalURL != "" {
		return Provider{Mode: ModeExternal, ExternalURL: externalURL}
	}
	return Provider{Mode: ModePipeline}
}

// RecoveryAction is one option the guest can take after a failed
// conversation start.
type RecoveryAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	// Target carries the action's destination: a mailto: link for email,
	// empty otherwise.
	Target string `json:"target,omitempty"`
}

// Fallback is the degraded-mode payload returned alongside a 503 when the
// store refuses to open a conversation. Message is rendered as a system
// notice in the widget; Actions always holds retry, email, and menu.
type Fallback struct {
	Message string           `json:"message"`
	Actions []RecoveryAction `json:"actions"`
}

// NewFallback builds the degraded-mode payload. supportEmail feeds the email
// action's mailto target; when blank the action is still offered without a
// prefilled address.
func NewFallback(supportEmail string) Fallback {
	email := RecoveryAction{ID: ActionEmail, Label: "Email our support team"}
	if addr := strings.TrimSpace(supportEmail); addr != "" {
		email.Target = "mailto:" + addr
	}
	return Fallback{
		Message: "We couldn't start your conversation right now. Your message hasn't been lost.",
		Actions: []RecoveryAction{
			{ID: ActionRetry, Label: "Try again"},
			email,
			{ID: ActionMenu, Label: "Back to help topics"},
		},
	}
}
