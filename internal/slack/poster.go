package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/ihbar/internal/conversation"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// Poster mirrors submitted reports into a Slack channel for operator review.
type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// PostReportSummary posts the report for review and returns the message ts
// that reactions will refer to.
func (p *Poster) PostReportSummary(ctx context.Context, sub conversation.Submission) (string, error) {
	text := formatReportMessage(sub)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "React: :+1: confirmed | :-1: false report | :shrug: skip",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted report to slack", "ts", ts, "report_id", sub.ReportID)
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatReportMessage(sub conversation.Submission) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Yeni bildirim:* %s\n", strings.Join(sub.Path, " > "))
	fmt.Fprintf(&sb, "*Gönderen:* %s\n", sub.Sender())
	if !sub.SubmittedAt.IsZero() {
		fmt.Fprintf(&sb, "*Zaman:* %s\n", sub.SubmittedAt.Format(time.RFC3339))
	}
	if sub.FreeText != "" {
		fmt.Fprintf(&sb, "*Mesaj:* %s\n", sub.FreeText)
	}

	if len(sub.Locations) > 0 {
		sb.WriteString("*Konum:*\n")
		for _, c := range sub.Locations {
			fmt.Fprintf(&sb, "• <https://maps.google.com/?q=%s|%s>\n", c, c)
		}
	}
	fmt.Fprintf(&sb, "*Resim:* %d\n", len(sub.Photos))
	fmt.Fprintf(&sb, "_Rapor: %s_", sub.ReportID)

	return sb.String()
}
