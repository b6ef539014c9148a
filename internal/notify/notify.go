// Package notify delivers reminder notifications over webhook and email.
package notify

import (
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
)

// Message is one notification to deliver. Empty Title or Message fields are left out of
// whatever the transport renders.
type Message struct {
	DefinitionID string
	Title        string
	Message      string
	Channel      domain.Channel
	Recipient    string
	FiredAt      time.Time
}
