// Package review mirrors submitted reports to Slack and records operator
// verdicts given there as reactions.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/conversation"
	"github.com/MikeSquared-Agency/ihbar/internal/hermes"
	"github.com/MikeSquared-Agency/ihbar/internal/schema"
	"github.com/MikeSquared-Agency/ihbar/internal/slack"
	"github.com/MikeSquared-Agency/ihbar/internal/store"
)

const rejectionPrompt = "Bildirim hatali olarak isaretlendi. Nedenini bu basliga yazarsaniz gonullulere iletilir."

type Poster interface {
	PostReportSummary(ctx context.Context, sub conversation.Submission) (string, error)
	PostThread(ctx context.Context, threadTS, text string) error
}

type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*store.Item, error)
	BulkAction(ctx context.Context, b store.Bulk) error
}

type Publisher interface {
	Publish(subject string, data any) error
}

// Reviewer is a conversation.Monitor. Reviews stay pending, keyed by Slack
// message ts, until a final verdict arrives. Pending reviews are lost on
// restart.
type Reviewer struct {
	store  Store
	poster Poster
	bus    Publisher
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]pendingReview
}

type pendingReview struct {
	ReportID uuid.UUID
	PostedAt time.Time
}

// New returns a reviewer. bus may be nil.
func New(s Store, poster Poster, bus Publisher, logger *slog.Logger) *Reviewer {
	return &Reviewer{
		store:   s,
		poster:  poster,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]pendingReview),
	}
}

// ReportSubmitted posts the report to Slack and starts tracking reactions on it.
func (r *Reviewer) ReportSubmitted(ctx context.Context, sub conversation.Submission) error {
	ts, err := r.poster.PostReportSummary(ctx, sub)
	if err != nil {
		return fmt.Errorf("mirror report %s to slack: %w", sub.ReportID, err)
	}

	r.mu.Lock()
	r.pending[ts] = pendingReview{ReportID: sub.ReportID, PostedAt: r.now()}
	r.mu.Unlock()
	return nil
}

// HandleReaction is the NATS handler for slack reaction events.
func (r *Reviewer) HandleReaction(subject string, data []byte) {
	ctx := context.Background()

	evt, err := slack.ParseReactionEvent(data)
	if err != nil {
		r.logger.Error("failed to parse reaction", "subject", subject, "error", err)
		return
	}

	verdict := slack.ParseReaction(evt.Reaction)
	if verdict == slack.VerdictUnknown {
		return // not a review reaction
	}

	r.mu.Lock()
	review, ok := r.pending[evt.MessageTS]
	if ok && verdict.Final() {
		delete(r.pending, evt.MessageTS)
	}
	r.mu.Unlock()
	if !ok {
		return // not a message we're tracking
	}

	r.logger.Info("processing review reaction",
		"reaction", evt.Reaction,
		"verdict", string(verdict),
		"report_id", review.ReportID,
		"reviewer", evt.UserID,
	)

	if err := r.SetReviewStatus(ctx, review.ReportID, string(verdict)); err != nil {
		r.logger.Error("failed to update report review", "report_id", review.ReportID, "error", err)
		return
	}

	if verdict.Final() && r.bus != nil {
		if err := r.bus.Publish(hermes.SubjectReportReviewed, hermes.ReviewedEvent{
			ReportID: review.ReportID.String(),
			Verdict:  string(verdict),
			Reviewer: evt.UserID,
			At:       r.now().UTC(),
		}); err != nil {
			r.logger.Error("failed to publish review", "report_id", review.ReportID, "error", err)
		}
	}

	if verdict == slack.VerdictRejected {
		if err := r.poster.PostThread(ctx, evt.MessageTS, rejectionPrompt); err != nil {
			r.logger.Error("failed to post rejection thread", "error", err)
		}
	}
}

// SetReviewStatus writes status into the report's reviewStatus property.
func (r *Reviewer) SetReviewStatus(ctx context.Context, reportID uuid.UUID, status string) error {
	it, err := r.store.Get(ctx, reportID)
	if err != nil {
		return fmt.Errorf("load report %s: %w", reportID, err)
	}
	rep, err := schema.ReportFromItem(*it)
	if err != nil {
		return err
	}
	rep.ReviewStatus = status
	if err := r.store.BulkAction(ctx, store.Bulk{UpdateItems: []store.Item{rep.Item()}}); err != nil {
		return fmt.Errorf("update report %s: %w", reportID, err)
	}
	return nil
}

// Pending returns how many mirrored reports await a final verdict.
func (r *Reviewer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
