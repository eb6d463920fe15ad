// Package nlp turns free-form operator text into a draft intent. The draft
// is a hint, not a dispatch key: the engine validates it against the plugin
// registry's declared vocabulary before acting on it.
package nlp

import "context"

// Draft is the untrusted structured guess produced from raw text.
type Draft struct {
	Category   string            `json:"category"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters"`
	Confidence float64           `json:"confidence"`
}

// Drafter produces a Draft from raw operator text. Implementations may block
// on network I/O and must honor context cancellation.
type Drafter interface {
	Draft(ctx context.Context, rawText string) (*Draft, error)
}
