package hooks

import (
	"strings"
	"time"

	"casework/internal/signal"
)

// Channel is the notification transport a hook delivers through.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ParseChannel converts a string into a known Channel.
func ParseChannel(value string) (Channel, bool) {
	normalized := Channel(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ChannelEmail, ChannelSMS:
		return normalized, true
	default:
		return "", false
	}
}

// Hook binds a signal type to recipients, a channel, and optional payload
// conditions. Hooks are immutable once loaded into a snapshot.
type Hook struct {
	ID            string
	SignalType    signal.Type
	Enabled       bool
	Channel       Channel
	Recipients    RecipientSpec
	Conditions    *Condition
	MaxRetries    int
	DeliveryDelay time.Duration
	Priority      int
}
