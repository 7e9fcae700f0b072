package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/session"
)

// Submission is a finalized report as seen by the monitoring side.
type Submission struct {
	ReportID         uuid.UUID
	Identity         session.Identity
	RegistrationInfo string
	Path             []string
	FreeText         string
	Locations        []session.Coordinate
	Photos           []session.PhotoRef
	SubmittedAt      time.Time
}

// Sender is how the reporter is named to the monitoring channel: their
// registration info, or the platform names when there is none.
func (s Submission) Sender() string {
	if s.RegistrationInfo != "" {
		return s.RegistrationInfo
	}
	return s.Identity.DisplayName()
}

// Monitor is notified once per finalized report.
type Monitor interface {
	ReportSubmitted(ctx context.Context, sub Submission) error
}

// FormatSummary renders the monitoring message for sub.
func FormatSummary(sub Submission) string {
	var b strings.Builder
	b.WriteString("Yeni bildirim yapildi!\n")
	fmt.Fprintf(&b, "Gönderen: %s\n", sub.Sender())
	fmt.Fprintf(&b, "Bildiri: %s", strings.Join(sub.Path, "-"))
	if sub.FreeText != "" {
		fmt.Fprintf(&b, "\nMesaj: %s", sub.FreeText)
	}
	return b.String()
}

// ChannelMonitor forwards submissions to the monitoring group chat: the
// summary, then every location and photo.
type ChannelMonitor struct {
	Chat   Chat
	ChatID int64
}

func (m *ChannelMonitor) ReportSubmitted(ctx context.Context, sub Submission) error {
	if m.ChatID == 0 {
		return nil
	}
	if err := m.Chat.SendText(ctx, m.ChatID, Reply{Text: FormatSummary(sub)}); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}

	var errs []error
	for _, c := range sub.Locations {
		if err := m.Chat.SendLocation(ctx, m.ChatID, c); err != nil {
			errs = append(errs, fmt.Errorf("forward location %s: %w", c, err))
		}
	}
	for _, p := range sub.Photos {
		if err := m.Chat.SendPhoto(ctx, m.ChatID, p.FileID); err != nil {
			errs = append(errs, fmt.Errorf("forward photo %s: %w", p.FileID, err))
		}
	}
	return errors.Join(errs...)
}
