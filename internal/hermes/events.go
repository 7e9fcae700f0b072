package hermes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/ihbar/internal/conversation"
)

const (
	// SubjectReportSubmitted carries a SubmittedEvent per finalized report.
	SubjectReportSubmitted = "ihbar.report.submitted"
	// SubjectReportReviewed carries a ReviewedEvent per operator verdict.
	SubjectReportReviewed = "ihbar.report.reviewed"
	// SubjectSlackReaction is where the Slack forwarder publishes reactions.
	SubjectSlackReaction = "swarm.slack.reaction"
)

type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SubmittedEvent is the bus form of a finalized report.
type SubmittedEvent struct {
	ReportID    string            `json:"report_id"`
	UserKey     string            `json:"user_key"`
	Sender      string            `json:"sender"`
	Category    string            `json:"category"`
	Subtype     string            `json:"subtype,omitempty"`
	Path        string            `json:"path"`
	Text        string            `json:"text,omitempty"`
	Locations   []LocationPayload `json:"locations"`
	PhotoIDs    []string          `json:"photo_ids"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

func NewSubmittedEvent(sub conversation.Submission) SubmittedEvent {
	evt := SubmittedEvent{
		ReportID:    sub.ReportID.String(),
		UserKey:     sub.Identity.Key(),
		Sender:      sub.Sender(),
		Path:        strings.Join(sub.Path, "-"),
		Text:        sub.FreeText,
		Locations:   make([]LocationPayload, 0, len(sub.Locations)),
		PhotoIDs:    make([]string, 0, len(sub.Photos)),
		SubmittedAt: sub.SubmittedAt,
	}
	if len(sub.Path) > 0 {
		evt.Category = sub.Path[0]
	}
	if len(sub.Path) > 1 {
		evt.Subtype = sub.Path[1]
	}
	for _, c := range sub.Locations {
		evt.Locations = append(evt.Locations, LocationPayload{Latitude: c.Latitude, Longitude: c.Longitude})
	}
	for _, p := range sub.Photos {
		evt.PhotoIDs = append(evt.PhotoIDs, p.Key())
	}
	return evt
}

// ReviewedEvent is published when an operator rules on a report.
type ReviewedEvent struct {
	ReportID string    `json:"report_id"`
	Verdict  string    `json:"verdict"`
	Reviewer string    `json:"reviewer"`
	At       time.Time `json:"at"`
}

// ReportSubmitted publishes sub on SubjectReportSubmitted.
func (c *Client) ReportSubmitted(_ context.Context, sub conversation.Submission) error {
	if err := c.Publish(SubjectReportSubmitted, NewSubmittedEvent(sub)); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectReportSubmitted, err)
	}
	c.logger.Debug("published report", "subject", SubjectReportSubmitted, "report_id", sub.ReportID)
	return nil
}
