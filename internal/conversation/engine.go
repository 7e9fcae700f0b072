package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/questions"
	"github.com/MikeSquared-Agency/ihbar/internal/report"
	"github.com/MikeSquared-Agency/ihbar/internal/reporter"
	"github.com/MikeSquared-Agency/ihbar/internal/schema"
	"github.com/MikeSquared-Agency/ihbar/internal/session"
)

// Chat is the outbound half of the chat adapter.
type Chat interface {
	SendText(ctx context.Context, chatID int64, r Reply) error
	EditText(ctx context.Context, chatID, messageID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, fileID string) error
	SendLocation(ctx context.Context, chatID int64, c session.Coordinate) error
}

type Reporters interface {
	Lookup(ctx context.Context, id session.Identity) reporter.Result
	Register(ctx context.Context, id session.Identity, info string) (*schema.Reporter, error)
}

type Assembler interface {
	SaveOrUpdate(ctx context.Context, s *session.Session) (uuid.UUID, error)
}

// Engine is the conversation state machine. Events for one identity are
// handled one at a time; different identities proceed concurrently.
type Engine struct {
	tree      *questions.Tree
	sessions  *session.Store
	reporters Reporters
	assembler Assembler
	chat      Chat
	monitors  []Monitor
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(tree *questions.Tree, sessions *session.Store, reporters Reporters, asm Assembler, chat Chat, logger *slog.Logger, monitors ...Monitor) *Engine {
	return &Engine{
		tree:      tree,
		sessions:  sessions,
		reporters: reporters,
		assembler: asm,
		chat:      chat,
		monitors:  monitors,
		logger:    logger,
		now:       time.Now,
	}
}

// Handle advances the identity's session by one event and replies on the
// event's chat. Failures are logged and answered in chat, never returned.
func (e *Engine) Handle(ctx context.Context, ev Event) Outcome {
	unlock := e.sessions.Lock(ev.Identity)
	defer unlock()

	e.logger.Debug("handling event", "kind", ev.Kind.String(), "user_key", ev.Identity.Key(), "chat_id", ev.ChatID)

	switch ev.Kind {
	case EventStart:
		return e.start(ctx, ev)
	case EventRestart:
		e.sessions.Clear(ev.Identity)
		return e.start(ctx, ev)
	case EventClear:
		e.sessions.Clear(ev.Identity)
		e.send(ctx, ev.ChatID, Reply{Text: msgCleared})
		return e.current(ctx, ev.Identity)
	case EventHelp:
		e.send(ctx, ev.ChatID, Reply{Text: msgHelp})
		return e.current(ctx, ev.Identity)
	case EventButton:
		return e.button(ctx, ev)
	case EventText:
		return e.text(ctx, ev)
	case EventPhoto, EventLocation:
		return e.evidence(ctx, ev)
	default:
		e.logger.Warn("unhandled event kind", "kind", int(ev.Kind))
		return e.current(ctx, ev.Identity)
	}
}

// State reports where id's conversation stands.
func (e *Engine) State(ctx context.Context, id session.Identity) State {
	return e.current(ctx, id).State
}

func (e *Engine) current(ctx context.Context, id session.Identity) Outcome {
	registered := e.reporters.Lookup(ctx, id).Found()
	s, _ := e.sessions.Get(id)
	return e.outcome(s, registered)
}

func (e *Engine) outcome(s *session.Session, registered bool) Outcome {
	switch {
	case !registered:
		return Outcome{State: AwaitingRegistration}
	case s == nil:
		return Outcome{State: AwaitingCategory}
	case !s.HasPath():
		return Outcome{State: AwaitingCategory, ReportID: s.ReportID}
	case e.tree.IsLeaf(s.Path):
		return Outcome{State: AwaitingEvidence, ReportID: s.ReportID}
	default:
		return Outcome{State: AwaitingSubchoice, ReportID: s.ReportID}
	}
}

func (e *Engine) start(ctx context.Context, ev Event) Outcome {
	res := e.reporters.Lookup(ctx, ev.Identity)
	if !res.Found() {
		e.sessions.GetOrCreate(ev.Identity)
		e.send(ctx, ev.ChatID, Reply{Text: msgRegister})
		return Outcome{State: AwaitingRegistration}
	}

	s := e.sessions.Reset(ev.Identity)
	if s.RegistrationInfo == "" {
		s.RegistrationInfo = res.Reporter.Information
	}
	e.ask(ctx, ev.ChatID, nil)
	e.logger.Info("conversation started", "user_key", ev.Identity.Key())
	return Outcome{State: AwaitingCategory}
}

func (e *Engine) button(ctx context.Context, ev Event) Outcome {
	if !e.reporters.Lookup(ctx, ev.Identity).Found() {
		e.send(ctx, ev.ChatID, Reply{Text: msgRegister})
		return Outcome{State: AwaitingRegistration}
	}

	s := e.sessions.GetOrCreate(ev.Identity)
	path := append(slices.Clone(s.Path), ev.Label)
	node, err := e.tree.Resolve(path)
	if err != nil {
		e.logger.Info("stale selection", "user_key", ev.Identity.Key(), "label", ev.Label, "path", s.Path, "error", err)
		e.stale(ctx, ev)
		return e.outcome(s, true)
	}

	s.Path = path
	if !node.IsLeaf() {
		e.ask(ctx, ev.ChatID, path)
		return Outcome{State: AwaitingSubchoice, ReportID: s.ReportID}
	}

	prompt, _ := e.tree.PromptFor(path)
	e.send(ctx, ev.ChatID, Reply{Text: prompt, RemoveKeyboard: true})
	return Outcome{State: AwaitingEvidence, ReportID: s.ReportID}
}

func (e *Engine) text(ctx context.Context, ev Event) Outcome {
	text := strings.TrimSpace(ev.Text)
	if strings.HasPrefix(text, "/") || utf8.RuneCountInString(text) <= minTextRunes {
		e.logger.Debug("ignoring text", "user_key", ev.Identity.Key(), "runes", utf8.RuneCountInString(text))
		return e.current(ctx, ev.Identity)
	}

	if !e.reporters.Lookup(ctx, ev.Identity).Found() {
		return e.register(ctx, ev, text)
	}

	s := e.sessions.GetOrCreate(ev.Identity)
	if !e.tree.IsLeaf(s.Path) {
		e.ask(ctx, ev.ChatID, s.Path)
		return e.outcome(s, true)
	}
	s.AddText(text)
	return e.evaluate(ctx, ev, s)
}

func (e *Engine) register(ctx context.Context, ev Event, info string) Outcome {
	if _, err := e.reporters.Register(ctx, ev.Identity, info); err != nil {
		e.logger.Error("registration failed", "user_key", ev.Identity.Key(), "error", err)
		e.send(ctx, ev.ChatID, Reply{Text: msgFailure})
		return Outcome{State: AwaitingRegistration}
	}
	e.sessions.GetOrCreate(ev.Identity).RegistrationInfo = info
	return e.start(ctx, ev)
}

func (e *Engine) evidence(ctx context.Context, ev Event) Outcome {
	if !e.reporters.Lookup(ctx, ev.Identity).Found() {
		e.send(ctx, ev.ChatID, Reply{Text: msgRegister})
		return Outcome{State: AwaitingRegistration}
	}

	s := e.sessions.GetOrCreate(ev.Identity)
	if !e.tree.IsLeaf(s.Path) {
		e.ask(ctx, ev.ChatID, s.Path)
		return e.outcome(s, true)
	}

	switch ev.Kind {
	case EventPhoto:
		if !s.AddPhoto(ev.Photo) {
			e.logger.Debug("duplicate photo", "user_key", ev.Identity.Key(), "file", ev.Photo.Key())
		}
	case EventLocation:
		if !s.AddLocation(ev.Location) {
			e.logger.Debug("duplicate location", "user_key", ev.Identity.Key(), "location", ev.Location.String())
		}
	}
	return e.evaluate(ctx, ev, s)
}

// evaluate saves what has been collected once a location is present, then
// finalizes or asks for whatever is still missing.
func (e *Engine) evaluate(ctx context.Context, ev Event, s *session.Session) Outcome {
	complete := s.Complete()
	if complete {
		s.Status = session.StatusConfirmed
	}

	if s.HasPath() && s.HasLocations() {
		id, err := e.assembler.SaveOrUpdate(ctx, s)
		switch {
		case err == nil:
		case errors.Is(err, report.ErrUpload):
			e.logger.Warn("report saved without all photo payloads", "report_id", id, "error", err)
		default:
			e.logger.Error("report save failed", "user_key", s.Identity.Key(), "report_id", s.ReportID, "error", err)
			s.Status = session.StatusUnconfirmed
			e.send(ctx, ev.ChatID, Reply{Text: msgFailure})
			return Outcome{State: AwaitingEvidence, ReportID: s.ReportID}
		}
	}

	if complete {
		return e.finalize(ctx, ev, s)
	}

	switch {
	case s.HasLocations() && s.HasPhotos():
		e.send(ctx, ev.ChatID, Reply{Text: msgAskText})
	case s.HasLocations() && s.HasText():
		e.send(ctx, ev.ChatID, Reply{Text: msgMissingPhoto})
	case s.HasLocations():
		e.send(ctx, ev.ChatID, Reply{Text: msgMissingPhotoText})
	case s.HasPhotos():
		e.send(ctx, ev.ChatID, Reply{Text: msgMissingLocation})
	default:
		e.send(ctx, ev.ChatID, Reply{Text: msgMissingEvidence})
	}
	return Outcome{State: AwaitingEvidence, ReportID: s.ReportID}
}

func (e *Engine) finalize(ctx context.Context, ev Event, s *session.Session) Outcome {
	sub := Submission{
		ReportID:         s.ReportID,
		Identity:         s.Identity,
		RegistrationInfo: s.RegistrationInfo,
		Path:             slices.Clone(s.Path),
		FreeText:         s.FreeText,
		Locations:        slices.Clone(s.Locations),
		Photos:           slices.Clone(s.Photos),
		SubmittedAt:      e.now().UTC(),
	}

	for _, m := range e.monitors {
		if err := m.ReportSubmitted(ctx, sub); err != nil {
			e.logger.Error("monitor notification failed", "report_id", sub.ReportID, "monitor", fmt.Sprintf("%T", m), "error", err)
		}
	}

	e.sessions.Clear(ev.Identity)
	e.send(ctx, ev.ChatID, Reply{Text: msgConfirmed, RemoveKeyboard: true})

	e.logger.Info("report submitted",
		"report_id", sub.ReportID,
		"user_key", ev.Identity.Key(),
		"path", strings.Join(sub.Path, "-"),
		"locations", len(sub.Locations),
		"photos", len(sub.Photos),
	)
	return Outcome{State: Submitted, ReportID: sub.ReportID}
}

// ask sends the question at path with its options as a keyboard.
func (e *Engine) ask(ctx context.Context, chatID int64, path []string) {
	prompt, err := e.tree.PromptFor(path)
	if err != nil {
		e.logger.Error("question lookup failed", "path", path, "error", err)
		return
	}
	labels, _ := e.tree.Labels(path)
	e.send(ctx, chatID, Reply{Text: prompt, Keyboard: labels})
}

// stale replaces the outdated keyboard message with a notice, or sends the
// notice when the message cannot be edited.
func (e *Engine) stale(ctx context.Context, ev Event) {
	if ev.MessageID != 0 {
		err := e.chat.EditText(ctx, ev.ChatID, ev.MessageID, msgStale)
		if err == nil {
			return
		}
		e.logger.Debug("edit of stale message failed", "message_id", ev.MessageID, "error", err)
	}
	e.send(ctx, ev.ChatID, Reply{Text: msgStale})
}

func (e *Engine) send(ctx context.Context, chatID int64, r Reply) {
	if err := e.chat.SendText(ctx, chatID, r); err != nil {
		e.logger.Error("chat send failed", "chat_id", chatID, "error", err)
	}
}
