package messaging

import (
	"context"

	"github.com/BTreeMap/PrintFlow/internal/models"
)

// Service defines a pluggable chat delivery abstraction.
// It supports sending messages and provides a channel of incoming
// customer responses.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	// Returns the canonicalized recipient and an error if validation fails.
	// This allows each service to implement its own recipient validation rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Responses returns a channel of incoming customer messages.
	Responses() <-chan models.Response
}
