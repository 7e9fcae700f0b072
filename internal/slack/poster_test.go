package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/conversation"
	"github.com/MikeSquared-Agency/ihbar/internal/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSubmission() conversation.Submission {
	return conversation.Submission{
		ReportID:         uuid.MustParse("9f6ed519-0000-0000-0000-000000000002"),
		Identity:         session.Identity{Username: "ali", FirstName: "Ali"},
		RegistrationInfo: "Ali Cetin, 05551234567",
		Path:             []string{"Yangin", "Duman"},
		FreeText:         "tepede duman",
		Locations:        []session.Coordinate{{Latitude: 37.0531, Longitude: 28.3252}},
		Photos:           []session.PhotoRef{{FileID: "f1"}, {FileID: "f2"}},
		SubmittedAt:      time.Date(2026, 8, 3, 14, 5, 0, 0, time.UTC),
	}
}

func TestFormatReportMessage(t *testing.T) {
	msg := formatReportMessage(testSubmission())

	checks := []string{
		"Yangin > Duman",
		"Ali Cetin, 05551234567",
		"tepede duman",
		"2026-08-03T14:05:00Z",
		"https://maps.google.com/?q=37.0531,28.3252",
		"*Resim:* 2",
		"9f6ed519-0000-0000-0000-000000000002",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q", check)
		}
	}
}

func TestFormatReportMessage_Minimal(t *testing.T) {
	msg := formatReportMessage(conversation.Submission{
		Identity: session.Identity{Username: "veli"},
		Path:     []string{"Risk"},
	})
	if strings.Contains(msg, "Mesaj") || strings.Contains(msg, "Konum") || strings.Contains(msg, "Zaman") {
		t.Errorf("expected optional sections omitted, got %q", msg)
	}
	if !strings.Contains(msg, "veli") {
		t.Errorf("expected username as sender, got %q", msg)
	}
}

func TestPostReportSummary_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		json.Unmarshal(body, &payload)

		if payload["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", payload["channel"])
		}
		if blocks, _ := payload["blocks"].([]any); len(blocks) != 2 {
			t.Errorf("expected 2 blocks, got %v", payload["blocks"])
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"ts": "1234567890.123456",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	ts, err := p.PostReportSummary(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != "1234567890.123456" {
		t.Errorf("expected ts 1234567890.123456, got %q", ts)
	}
}

func TestPostReportSummary_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"ok":    false,
			"error": "channel_not_found",
		})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	_, err := p.PostReportSummary(context.Background(), testSubmission())
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected channel_not_found error, got %v", err)
	}
}

func TestPostThread(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "2.0"})
	}))
	defer server.Close()

	p := NewPoster("xoxb-test", "C123", discardLogger())
	p.apiURL = server.URL

	if err := p.PostThread(context.Background(), "1.0", "Bildirim reddedildi."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["thread_ts"] != "1.0" || payload["text"] != "Bildirim reddedildi." {
		t.Errorf("unexpected payload: %v", payload)
	}
}
