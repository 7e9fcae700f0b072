package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MikeSquared-Agency/ihbar/internal/conversation"
	"github.com/MikeSquared-Agency/ihbar/internal/session"
)

var commands = map[string]conversation.EventKind{
	"start":   conversation.EventStart,
	"basla":   conversation.EventStart,
	"help":    conversation.EventHelp,
	"yardim":  conversation.EventHelp,
	"bitir":   conversation.EventClear,
	"temizle": conversation.EventClear,
	"yeniden": conversation.EventRestart,
}

// Translate maps an update to an engine event. Updates the engine has no use
// for (stickers, edits, channel posts) report false.
func Translate(u tgbotapi.Update) (conversation.Event, bool) {
	if q := u.CallbackQuery; q != nil {
		if q.Message == nil || q.Message.Chat == nil || q.From == nil || q.Data == "" {
			return conversation.Event{}, false
		}
		return conversation.Event{
			Kind:      conversation.EventButton,
			ChatID:    q.Message.Chat.ID,
			MessageID: int64(q.Message.MessageID),
			Identity:  identity(q.From),
			Label:     q.Data,
		}, true
	}

	m := u.Message
	if m == nil || m.Chat == nil || m.From == nil || m.From.IsBot {
		return conversation.Event{}, false
	}
	ev := conversation.Event{ChatID: m.Chat.ID, MessageID: int64(m.MessageID), Identity: identity(m.From)}

	switch {
	case m.Location != nil:
		ev.Kind = conversation.EventLocation
		ev.Location = session.Coordinate{Latitude: m.Location.Latitude, Longitude: m.Location.Longitude}
	case len(m.Photo) > 0:
		p := largest(m.Photo)
		ev.Kind = conversation.EventPhoto
		ev.Photo = session.PhotoRef{FileID: p.FileID, FileUniqueID: p.FileUniqueID}
	case m.Text != "":
		if kind, ok := command(m.Text); ok {
			ev.Kind = kind
		} else {
			ev.Kind = conversation.EventText
			ev.Text = m.Text
		}
	default:
		return conversation.Event{}, false
	}
	return ev, true
}

// identity falls back to the numeric user id for accounts without a username.
func identity(u *tgbotapi.User) session.Identity {
	name := u.UserName
	if name == "" {
		name = strconv.FormatInt(u.ID, 10)
	}
	return session.Identity{Username: name, FirstName: u.FirstName}
}

// command recognizes "/name" and "/name@botname", ignoring arguments.
func command(text string) (conversation.EventKind, bool) {
	if !strings.HasPrefix(text, "/") {
		return 0, false
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	name, _, _ = strings.Cut(name, "@")
	kind, ok := commands[strings.ToLower(name)]
	return kind, ok
}

// largest picks the biggest rendition of a photo.
func largest(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}
