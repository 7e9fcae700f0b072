package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const DefaultAPIURL = "https://api.telegram.org"

// maxDownloadBytes is the Bot API getFile limit.
const maxDownloadBytes = 20 << 20

var allowedUpdates = []string{"message", "callback_query"}

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Client calls the Telegram Bot API through tgbotapi. Every call carries the
// caller's context.
type Client struct {
	bot    *tgbotapi.BotAPI
	apiURL string
	http   *http.Client
	logger *slog.Logger
}

// NewClient connects to apiURL, or the public API when empty, and verifies
// the token with getMe. The HTTP timeout must exceed the long-poll timeout
// passed to GetUpdates.
func NewClient(token, apiURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	apiURL = strings.TrimRight(apiURL, "/")
	httpClient := &http.Client{Timeout: timeout}

	bot, err := tgbotapi.NewBotAPIWithClient(token, apiURL+"/bot%s/%s", httpClient)
	if err != nil {
		return nil, apiError("getMe", err)
	}
	logger.Info("telegram bot ready", "username", bot.Self.UserName)

	return &Client{bot: bot, apiURL: apiURL, http: httpClient, logger: logger}, nil
}

// ctxDoer binds one call's context to the requests tgbotapi builds.
type ctxDoer struct {
	ctx context.Context
	c   *http.Client
}

func (d ctxDoer) Do(req *http.Request) (*http.Response, error) {
	return d.c.Do(req.WithContext(d.ctx))
}

func (c *Client) with(ctx context.Context) *tgbotapi.BotAPI {
	bot := *c.bot
	bot.Client = ctxDoer{ctx: ctx, c: c.http}
	return &bot
}

func (c *Client) request(ctx context.Context, method string, cfg tgbotapi.Chattable) error {
	if _, err := c.with(ctx).Request(cfg); err != nil {
		return apiError(method, err)
	}
	return nil
}

func apiError(method string, err error) error {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) {
		return &APIError{Method: method, Code: ptr.Code, Description: ptr.Message}
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return &APIError{Method: method, Code: val.Code, Description: val.Message}
	}
	return fmt.Errorf("telegram %s: %w", method, err)
}

// SendMessage sends text with an optional reply markup.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	return c.request(ctx, "sendMessage", msg)
}

// EditMessageText replaces a message's text and drops its inline keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.request(ctx, "editMessageText", tgbotapi.NewEditMessageText(chatID, int(messageID), text))
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	return c.request(ctx, "answerCallbackQuery", tgbotapi.NewCallback(id, ""))
}

// SendPhoto re-sends an already uploaded photo by file id.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID string) error {
	return c.request(ctx, "sendPhoto", tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID)))
}

func (c *Client) SendLocation(ctx context.Context, chatID int64, lat, lon float64) error {
	return c.request(ctx, "sendLocation", tgbotapi.NewLocation(chatID, lat, lon))
}

// Download fetches a file's bytes by file id. tgbotapi resolves the path but
// always links files on the public host, so the file itself is fetched from
// apiURL here.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	f, err := c.with(ctx).GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, apiError("getFile", err)
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile %s: no file path", fileID)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.apiURL, c.bot.Token, f.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("download %s: status %d", fileID, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileID, err)
	}
	if len(data) > maxDownloadBytes {
		return nil, fmt.Errorf("download %s: larger than %d bytes", fileID, maxDownloadBytes)
	}

	c.logger.Debug("downloaded file", "file_id", fileID, "bytes", len(data))
	return data, nil
}

// GetUpdates long-polls for updates from offset on.
func (c *Client) GetUpdates(ctx context.Context, offset int, timeout time.Duration) ([]tgbotapi.Update, error) {
	updates, err := c.with(ctx).GetUpdates(tgbotapi.UpdateConfig{
		Offset:         offset,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return nil, apiError("getUpdates", err)
	}
	return updates, nil
}

// SetWebhook registers url. tgbotapi's WebhookConfig has no secret_token, so
// the call is made with raw params.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", allowedUpdates); err != nil {
		return fmt.Errorf("encode allowed_updates: %w", err)
	}
	if _, err := c.with(ctx).MakeRequest("setWebhook", params); err != nil {
		return apiError("setWebhook", err)
	}
	return nil
}

func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.request(ctx, "deleteWebhook", tgbotapi.DeleteWebhookConfig{})
}
