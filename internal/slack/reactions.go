package slack

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReactionEvent is the structure received from slack-forwarder via NATS.
type ReactionEvent struct {
	Reaction  string `json:"reaction"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// ReviewVerdict is an operator's ruling on a mirrored report.
type ReviewVerdict string

const (
	VerdictConfirmed ReviewVerdict = "confirmed"
	VerdictRejected  ReviewVerdict = "rejected"
	VerdictSkipped   ReviewVerdict = "skipped"
	VerdictUnknown   ReviewVerdict = "unknown"
)

// Final reports whether the verdict settles the report.
func (v ReviewVerdict) Final() bool {
	return v == VerdictConfirmed || v == VerdictRejected
}

// ParseReaction converts a Slack reaction emoji name to a review verdict.
// Skin-tone suffixes such as "+1::skin-tone-3" are ignored.
func ParseReaction(reaction string) ReviewVerdict {
	reaction, _, _ = strings.Cut(reaction, "::")
	switch reaction {
	case "+1", "thumbsup", "white_check_mark":
		return VerdictConfirmed
	case "-1", "thumbsdown", "x":
		return VerdictRejected
	case "shrug":
		return VerdictSkipped
	default:
		return VerdictUnknown
	}
}

// ParseReactionEvent parses a NATS message payload from slack-forwarder into a ReactionEvent.
func ParseReactionEvent(data []byte) (*ReactionEvent, error) {
	// The slack-forwarder publishes events with metadata in a wrapper.
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse reaction wrapper: %w", err)
	}
	if wrapper.Metadata["message_ts"] == "" {
		return nil, fmt.Errorf("reaction event without message_ts")
	}

	return &ReactionEvent{
		Reaction:  strings.Trim(wrapper.Metadata["text"], ":"),
		UserID:    wrapper.Metadata["user_id"],
		Channel:   wrapper.Metadata["channel_id"],
		MessageTS: wrapper.Metadata["message_ts"],
	}, nil
}
