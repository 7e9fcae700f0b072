package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MikeSquared-Agency/ihbar/internal/conversation"
	"github.com/MikeSquared-Agency/ihbar/internal/session"
)

// Bot adapts Client to the conversation engine's Chat.
type Bot struct {
	client *Client
}

func NewBot(c *Client) *Bot {
	return &Bot{client: c}
}

// SendText sends r. Keyboard labels become one inline button per row, with
// the label itself as callback data.
func (b *Bot) SendText(ctx context.Context, chatID int64, r conversation.Reply) error {
	return b.client.SendMessage(ctx, chatID, r.Text, replyMarkup(r))
}

func (b *Bot) EditText(ctx context.Context, chatID, messageID int64, text string) error {
	return b.client.EditMessageText(ctx, chatID, messageID, text)
}

func (b *Bot) SendPhoto(ctx context.Context, chatID int64, fileID string) error {
	return b.client.SendPhoto(ctx, chatID, fileID)
}

func (b *Bot) SendLocation(ctx context.Context, chatID int64, c session.Coordinate) error {
	return b.client.SendLocation(ctx, chatID, c.Latitude, c.Longitude)
}

func replyMarkup(r conversation.Reply) any {
	if len(r.Keyboard) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, len(r.Keyboard))
		for i, label := range r.Keyboard {
			rows[i] = tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, label))
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if r.RemoveKeyboard {
		return tgbotapi.NewRemoveKeyboard(false)
	}
	return nil
}
