package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MikeSquared-Agency/ihbar/internal/conversation"
)

// Handler consumes engine events.
type Handler interface {
	Handle(ctx context.Context, ev conversation.Event) conversation.Outcome
}

// Dispatcher turns updates into engine events.
type Dispatcher struct {
	client  *Client
	handler Handler
	logger  *slog.Logger
}

func NewDispatcher(c *Client, h Handler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{client: c, handler: h, logger: logger}
}

// Dispatch handles one update to completion.
func (d *Dispatcher) Dispatch(ctx context.Context, u tgbotapi.Update) {
	if q := u.CallbackQuery; q != nil {
		if err := d.client.AnswerCallbackQuery(ctx, q.ID); err != nil {
			d.logger.Debug("answer callback query failed", "update_id", u.UpdateID, "error", err)
		}
	}

	ev, ok := Translate(u)
	if !ok {
		d.logger.Debug("ignoring update", "update_id", u.UpdateID)
		return
	}

	out := d.handler.Handle(ctx, ev)
	d.logger.Debug("update handled",
		"update_id", u.UpdateID,
		"kind", ev.Kind.String(),
		"user_key", ev.Identity.Key(),
		"state", out.State.String(),
	)
}

// Poller receives updates by long polling and dispatches them one at a time.
type Poller struct {
	client     *Client
	dispatcher *Dispatcher
	timeout    time.Duration
	backoff    time.Duration
	logger     *slog.Logger
	offset     int
}

func NewPoller(c *Client, d *Dispatcher, timeout time.Duration, logger *slog.Logger) *Poller {
	return &Poller{client: c, dispatcher: d, timeout: timeout, backoff: 3 * time.Second, logger: logger}
}

// Run polls until ctx is cancelled. Failed polls are logged and retried.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.client.DeleteWebhook(ctx); err != nil {
		p.logger.Warn("delete webhook failed", "error", err)
	}
	p.logger.Info("polling for telegram updates", "timeout", p.timeout.String())

	for {
		if ctx.Err() != nil {
			return nil
		}

		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error("get updates failed", "offset", p.offset, "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.backoff):
			}
			continue
		}

		for _, u := range updates {
			p.dispatcher.Dispatch(ctx, u)
			p.offset = u.UpdateID + 1
		}
	}
}

// WebhookHandler serves Telegram webhook deliveries. When secret is set the
// X-Telegram-Bot-Api-Secret-Token header must match it.
func WebhookHandler(d *Dispatcher, secret string, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != secret {
			logger.Warn("webhook request with bad secret", "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var u tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			http.Error(w, "invalid update", http.StatusBadRequest)
			return
		}

		d.Dispatch(r.Context(), u)
		w.WriteHeader(http.StatusOK)
	})
}
