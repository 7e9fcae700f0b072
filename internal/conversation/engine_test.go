package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/ihbar/internal/dedup"
	"github.com/MikeSquared-Agency/ihbar/internal/questions"
	"github.com/MikeSquared-Agency/ihbar/internal/report"
	"github.com/MikeSquared-Agency/ihbar/internal/reporter"
	"github.com/MikeSquared-Agency/ihbar/internal/schema"
	"github.com/MikeSquared-Agency/ihbar/internal/session"
	"github.com/MikeSquared-Agency/ihbar/internal/store/storetest"
)

type sent struct {
	kind      string
	chatID    int64
	messageID int64
	reply     Reply
	fileID    string
	location  session.Coordinate
}

type fakeChat struct {
	mu      sync.Mutex
	sent    []sent
	editErr error
}

func (f *fakeChat) record(s sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, s)
	return nil
}

func (f *fakeChat) SendText(_ context.Context, chatID int64, r Reply) error {
	return f.record(sent{kind: "text", chatID: chatID, reply: r})
}

func (f *fakeChat) EditText(_ context.Context, chatID, messageID int64, text string) error {
	if f.editErr != nil {
		return f.editErr
	}
	return f.record(sent{kind: "edit", chatID: chatID, messageID: messageID, reply: Reply{Text: text}})
}

func (f *fakeChat) SendPhoto(_ context.Context, chatID int64, fileID string) error {
	return f.record(sent{kind: "photo", chatID: chatID, fileID: fileID})
}

func (f *fakeChat) SendLocation(_ context.Context, chatID int64, c session.Coordinate) error {
	return f.record(sent{kind: "location", chatID: chatID, location: c})
}

func (f *fakeChat) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeChat) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeMedia struct{ err error }

func (f *fakeMedia) Download(_ context.Context, fileID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("\xff\xd8\xff\xe0 " + fileID), nil
}

type recordingMonitor struct {
	mu   sync.Mutex
	subs []Submission
	err  error
}

func (m *recordingMonitor) ReportSubmitted(_ context.Context, sub Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, sub)
	return m.err
}

const userChat int64 = 42

type harness struct {
	engine   *Engine
	chat     *fakeChat
	mem      *storetest.Memory
	media    *fakeMedia
	sessions *session.Store
	tree     *questions.Tree
	monitor  *recordingMonitor
	id       session.Identity
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mem := storetest.NewMemory()
	dir := reporter.NewDirectory(mem, logger)
	media := &fakeMedia{}
	asm := report.NewAssembler(mem, dir, media, dedup.NewIndex(), logger)
	chat := &fakeChat{}
	sessions := session.NewStore()
	tree := questions.Default()
	mon := &recordingMonitor{}
	return &harness{
		engine:   NewEngine(tree, sessions, dir, asm, chat, logger, mon),
		chat:     chat,
		mem:      mem,
		media:    media,
		sessions: sessions,
		tree:     tree,
		monitor:  mon,
		id:       session.Identity{Username: "ali", FirstName: "Ali"},
	}
}

func (h *harness) ev(kind EventKind) Event {
	return Event{Kind: kind, ChatID: userChat, Identity: h.id}
}

func (h *harness) handle(ev Event) Outcome {
	return h.engine.Handle(context.Background(), ev)
}

func (h *harness) press(label string) Outcome {
	ev := h.ev(EventButton)
	ev.Label = label
	ev.MessageID = 7
	return h.handle(ev)
}

func (h *harness) say(text string) Outcome {
	ev := h.ev(EventText)
	ev.Text = text
	return h.handle(ev)
}

func (h *harness) photo(fileID, uniqueID string) Outcome {
	ev := h.ev(EventPhoto)
	ev.Photo = session.PhotoRef{FileID: fileID, FileUniqueID: uniqueID}
	return h.handle(ev)
}

func (h *harness) locate(lat, lon float64) Outcome {
	ev := h.ev(EventLocation)
	ev.Location = session.Coordinate{Latitude: lat, Longitude: lon}
	return h.handle(ev)
}

const registration = "Ali Çetin, 05551234567, ARH+, Tuna Bilge 05551234567"

// registered returns a harness whose user has registered and sits at the
// category question.
func registered(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	h.handle(h.ev(EventStart))
	if out := h.say(registration); out.State != AwaitingCategory {
		t.Fatalf("expected AwaitingCategory after registration, got %s", out.State)
	}
	return h
}

// atLeaf returns a registered harness at the Yangin > Duman evidence step.
func atLeaf(t *testing.T) *harness {
	t.Helper()
	h := registered(t)
	h.press("Yangin")
	if out := h.press("Duman"); out.State != AwaitingEvidence {
		t.Fatalf("expected AwaitingEvidence, got %s", out.State)
	}
	return h
}

func TestStart_Unregistered(t *testing.T) {
	h := newHarness(t)

	out := h.handle(h.ev(EventStart))
	if out.State != AwaitingRegistration {
		t.Fatalf("expected AwaitingRegistration, got %s", out.State)
	}
	if got := h.chat.last().reply.Text; got != msgRegister {
		t.Errorf("expected registration prompt, got %q", got)
	}
	if _, ok := h.sessions.Get(h.id); !ok {
		t.Error("expected session to be created")
	}
}

func TestRegistration(t *testing.T) {
	h := registered(t)

	last := h.chat.last().reply
	root, _ := h.tree.PromptFor(nil)
	if last.Text != root {
		t.Errorf("expected root prompt, got %q", last.Text)
	}
	want := []string{"Yangin", "Su kaynagi", "Risk"}
	if !slices.Equal(last.Keyboard, want) {
		t.Errorf("expected keyboard %v, got %v", want, last.Keyboard)
	}

	s, _ := h.sessions.Get(h.id)
	if s.RegistrationInfo != registration {
		t.Errorf("expected registration info kept, got %q", s.RegistrationInfo)
	}

	phones := h.mem.ItemsOfType(schema.TypePhoneNumber)
	if len(phones) != 1 || phones[0].Properties["phoneNumber"] != "05551234567" {
		t.Fatalf("expected phone 05551234567, got %+v", phones)
	}
	edges := h.mem.AllEdges(schema.EdgeHasPhoneNumber)
	if len(edges) != 1 || edges[0].Target != phones[0].ID {
		t.Errorf("expected hasPhoneNumber edge, got %+v", edges)
	}
}

func TestRegistration_StoreFailure(t *testing.T) {
	h := newHarness(t)
	h.mem.BulkErr = errors.New("db down")

	out := h.say(registration)
	if out.State != AwaitingRegistration {
		t.Errorf("expected AwaitingRegistration, got %s", out.State)
	}
	if got := h.chat.last().reply.Text; got != msgFailure {
		t.Errorf("expected failure notice, got %q", got)
	}
}

func TestUnregisteredEvidenceIgnored(t *testing.T) {
	h := newHarness(t)
	h.handle(h.ev(EventStart))

	if out := h.photo("f1", "u1"); out.State != AwaitingRegistration {
		t.Errorf("expected AwaitingRegistration, got %s", out.State)
	}
	if out := h.press("Yangin"); out.State != AwaitingRegistration {
		t.Errorf("expected AwaitingRegistration, got %s", out.State)
	}
	s, _ := h.sessions.Get(h.id)
	if s.HasPhotos() || s.HasPath() {
		t.Errorf("expected session untouched, got %+v", s)
	}
	if got := h.chat.last().reply.Text; got != msgRegister {
		t.Errorf("expected registration prompt, got %q", got)
	}
}

func TestShortTextAndCommandsIgnored(t *testing.T) {
	h := newHarness(t)
	before := h.chat.count()

	for _, text := range []string{"merha", "  abc  ", "/unknown command here"} {
		if out := h.say(text); out.State != AwaitingRegistration {
			t.Errorf("%q: expected AwaitingRegistration, got %s", text, out.State)
		}
	}
	if h.chat.count() != before {
		t.Error("expected no replies to ignored text")
	}
	if n := len(h.mem.ItemsOfType(schema.TypeReporter)); n != 0 {
		t.Errorf("expected no registration, got %d reporters", n)
	}
}

func TestEveryLeafReachesEvidence(t *testing.T) {
	for _, leaf := range questions.Default().Leaves() {
		t.Run(strings.Join(leaf, "/"), func(t *testing.T) {
			h := registered(t)
			var out Outcome
			for i, label := range leaf {
				out = h.press(label)
				if i < len(leaf)-1 && out.State != AwaitingSubchoice {
					t.Fatalf("expected AwaitingSubchoice after %q, got %s", label, out.State)
				}
			}
			if out.State != AwaitingEvidence {
				t.Fatalf("expected AwaitingEvidence, got %s", out.State)
			}
			want, _ := h.tree.PromptFor(leaf)
			last := h.chat.last().reply
			if last.Text != want {
				t.Errorf("expected %q, got %q", want, last.Text)
			}
			if !last.RemoveKeyboard {
				t.Error("expected keyboard removal at leaf")
			}
		})
	}
}

func TestStaleButton(t *testing.T) {
	h := registered(t)
	h.press("Yangin")

	out := h.press("Risk")
	if out.State != AwaitingSubchoice {
		t.Errorf("expected state unchanged at AwaitingSubchoice, got %s", out.State)
	}
	s, _ := h.sessions.Get(h.id)
	if !slices.Equal(s.Path, []string{"Yangin"}) {
		t.Errorf("expected path unchanged, got %v", s.Path)
	}
	last := h.chat.last()
	if last.kind != "edit" || last.messageID != 7 || last.reply.Text != msgStale {
		t.Errorf("expected stale edit of message 7, got %+v", last)
	}
}

func TestStaleButton_EditFails(t *testing.T) {
	h := atLeaf(t)
	h.chat.editErr = errors.New("message too old")

	h.press("Ates")
	last := h.chat.last()
	if last.kind != "text" || last.reply.Text != msgStale {
		t.Errorf("expected stale notice as new message, got %+v", last)
	}
}

func TestEvidenceBeforeLeaf(t *testing.T) {
	h := registered(t)
	root, _ := h.tree.PromptFor(nil)

	out := h.locate(37.05, 28.32)
	if out.State != AwaitingCategory {
		t.Errorf("expected AwaitingCategory, got %s", out.State)
	}
	if got := h.chat.last().reply.Text; got != root {
		t.Errorf("expected category question again, got %q", got)
	}

	h.press("Yangin")
	sub, _ := h.tree.PromptFor([]string{"Yangin"})
	h.say("tepede duman goruyorum")
	if got := h.chat.last().reply.Text; got != sub {
		t.Errorf("expected subchoice question again, got %q", got)
	}

	s, _ := h.sessions.Get(h.id)
	if s.HasLocations() || s.HasText() {
		t.Errorf("expected nothing collected before a leaf, got %+v", s)
	}
}

func TestMissingPrompts(t *testing.T) {
	t.Run("location only", func(t *testing.T) {
		h := atLeaf(t)
		out := h.locate(37.05, 28.32)
		if out.State != AwaitingEvidence || out.ReportID == uuid.Nil {
			t.Errorf("expected saved report awaiting evidence, got %+v", out)
		}
		if got := h.chat.last().reply.Text; got != msgMissingPhotoText {
			t.Errorf("expected missing photo and text prompt, got %q", got)
		}
	})
	t.Run("text and location", func(t *testing.T) {
		h := atLeaf(t)
		h.say("tepede duman var")
		out := h.locate(37.05, 28.32)
		if out.State != AwaitingEvidence || out.ReportID == uuid.Nil {
			t.Errorf("expected saved report awaiting evidence, got %+v", out)
		}
		if got := h.chat.last().reply.Text; got != msgMissingPhoto {
			t.Errorf("expected missing photo prompt, got %q", got)
		}
	})
	t.Run("photo only", func(t *testing.T) {
		h := atLeaf(t)
		out := h.photo("f1", "u1")
		if out.State != AwaitingEvidence || out.ReportID != uuid.Nil {
			t.Errorf("expected unsaved session awaiting evidence, got %+v", out)
		}
		if got := h.chat.last().reply.Text; got != msgMissingLocation {
			t.Errorf("expected missing location prompt, got %q", got)
		}
		if n := len(h.mem.ItemsOfType(schema.TypeReport)); n != 0 {
			t.Errorf("expected no report without a location, got %d", n)
		}
	})
	t.Run("text only", func(t *testing.T) {
		h := atLeaf(t)
		h.say("tepede duman var")
		if got := h.chat.last().reply.Text; got != msgMissingEvidence {
			t.Errorf("expected missing evidence prompt, got %q", got)
		}
	})
	t.Run("location and photo", func(t *testing.T) {
		h := atLeaf(t)
		h.locate(37.05, 28.32)
		out := h.photo("f1", "u1")
		if out.State != AwaitingEvidence {
			t.Errorf("expected AwaitingEvidence, got %s", out.State)
		}
		if got := h.chat.last().reply.Text; got != msgAskText {
			t.Errorf("expected free text prompt, got %q", got)
		}
	})
	t.Run("photo and text", func(t *testing.T) {
		h := atLeaf(t)
		h.photo("f1", "u1")
		out := h.say("tepede duman var")
		if out.State != AwaitingEvidence {
			t.Errorf("expected AwaitingEvidence, got %s", out.State)
		}
		if got := h.chat.last().reply.Text; got != msgMissingLocation {
			t.Errorf("expected missing location prompt, got %q", got)
		}
	})
}

func TestFinalize(t *testing.T) {
	h := atLeaf(t)

	h.locate(37.0531, 28.3252)
	h.photo("f1", "u1")
	out := h.say("tepede yogun duman var")
	if !out.Submitted() {
		t.Fatalf("expected Submitted, got %s", out.State)
	}
	if _, ok := h.sessions.Get(h.id); ok {
		t.Error("expected session cleared after submission")
	}
	if got := h.chat.last().reply.Text; got != msgConfirmed {
		t.Errorf("expected confirmation, got %q", got)
	}

	if len(h.monitor.subs) != 1 {
		t.Fatalf("expected 1 monitor notification, got %d", len(h.monitor.subs))
	}
	sub := h.monitor.subs[0]
	if sub.ReportID != out.ReportID || sub.Sender() != registration {
		t.Errorf("unexpected submission: %+v", sub)
	}
	if len(sub.Locations) != 1 || len(sub.Photos) != 1 || sub.FreeText != "tepede yogun duman var" {
		t.Errorf("unexpected submission evidence: %+v", sub)
	}

	reports := h.mem.ItemsOfType(schema.TypeReport)
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	props := reports[0].Properties
	if props["status"] != "confirmed" || props["text"] != "tepede yogun duman var" {
		t.Errorf("unexpected final report: %v", props)
	}
	if n := len(h.mem.AllEdges(schema.EdgeReporter)); n != 1 {
		t.Errorf("expected 1 reporter edge, got %d", n)
	}

	// a new conversation starts from scratch
	if out := h.handle(h.ev(EventStart)); out.State != AwaitingCategory {
		t.Errorf("expected AwaitingCategory, got %s", out.State)
	}
	s, ok := h.sessions.Get(h.id)
	if !ok || s.HasPath() || s.ReportID != uuid.Nil || s.HasLocations() {
		t.Errorf("expected fresh session, got %+v", s)
	}
}

func TestFinalize_AnyOrder(t *testing.T) {
	h := atLeaf(t)

	if out := h.say("ates cok yakin"); out.Submitted() {
		t.Fatal("submitted too early")
	}
	if out := h.photo("f1", "u1"); out.Submitted() {
		t.Fatal("submitted too early")
	}
	if out := h.locate(37.05, 28.32); !out.Submitted() {
		t.Fatalf("expected Submitted, got %s", out.State)
	}
}

func TestFinalize_MonitorFailureStillSubmits(t *testing.T) {
	h := atLeaf(t)
	h.monitor.err = errors.New("group chat gone")

	h.locate(37.05, 28.32)
	h.photo("f1", "u1")
	if out := h.say("tepede duman var"); !out.Submitted() {
		t.Errorf("expected Submitted, got %s", out.State)
	}
}

func TestSaveFailureKeepsSession(t *testing.T) {
	h := atLeaf(t)
	h.mem.BulkErr = errors.New("db down")

	out := h.locate(37.05, 28.32)
	if out.State != AwaitingEvidence || out.ReportID != uuid.Nil {
		t.Errorf("expected unsaved AwaitingEvidence, got %+v", out)
	}
	if got := h.chat.last().reply.Text; got != msgFailure {
		t.Errorf("expected failure notice, got %q", got)
	}

	h.photo("f1", "u1")
	out = h.say("tepede duman var")
	if out.Submitted() {
		t.Fatal("must not submit while the store is failing")
	}
	s, _ := h.sessions.Get(h.id)
	if s.Status != session.StatusUnconfirmed || !s.HasLocations() || !s.HasPhotos() {
		t.Errorf("expected collected evidence kept, got %+v", s)
	}

	h.mem.BulkErr = nil
	if out := h.locate(37.05, 28.32); !out.Submitted() {
		t.Errorf("expected Submitted on retry, got %s", out.State)
	}
}

func TestMediaFailureKeepsSession(t *testing.T) {
	h := atLeaf(t)
	h.media.err = errors.New("telegram 502")

	h.locate(37.05, 28.32)
	h.photo("f1", "u1")
	if got := h.chat.last().reply.Text; got != msgFailure {
		t.Errorf("expected failure notice, got %q", got)
	}
	s, _ := h.sessions.Get(h.id)
	if len(s.Photos) != 1 {
		t.Errorf("expected photo kept for retry, got %d", len(s.Photos))
	}
}

func TestDuplicateEvidence(t *testing.T) {
	h := atLeaf(t)
	h.locate(37.05, 28.32)
	h.locate(37.05, 28.32)
	h.photo("f1", "u1")
	h.photo("f2", "u1")

	s, _ := h.sessions.Get(h.id)
	if len(s.Locations) != 1 || len(s.Photos) != 1 {
		t.Errorf("expected 1 location and 1 photo, got %d and %d", len(s.Locations), len(s.Photos))
	}
	if n := len(h.mem.ItemsOfType(schema.TypeLocation)); n != 1 {
		t.Errorf("expected 1 location entity, got %d", n)
	}
	if n := len(h.mem.ItemsOfType(schema.TypePhoto)); n != 1 {
		t.Errorf("expected 1 photo entity, got %d", n)
	}
	if h.mem.UploadCalls != 1 {
		t.Errorf("expected 1 upload, got %d", h.mem.UploadCalls)
	}
}

func TestClear(t *testing.T) {
	h := atLeaf(t)
	h.locate(37.05, 28.32)

	out := h.handle(h.ev(EventClear))
	if out.State != AwaitingCategory {
		t.Errorf("expected AwaitingCategory, got %s", out.State)
	}
	if _, ok := h.sessions.Get(h.id); ok {
		t.Error("expected session removed")
	}
	if got := h.chat.last().reply.Text; got != msgCleared {
		t.Errorf("expected cleared notice, got %q", got)
	}
}

func TestRestart(t *testing.T) {
	h := atLeaf(t)

	out := h.handle(h.ev(EventRestart))
	if out.State != AwaitingCategory {
		t.Errorf("expected AwaitingCategory, got %s", out.State)
	}
	s, _ := h.sessions.Get(h.id)
	if s.HasPath() {
		t.Errorf("expected empty path, got %v", s.Path)
	}
	if len(h.chat.last().reply.Keyboard) != 3 {
		t.Errorf("expected category keyboard, got %+v", h.chat.last().reply)
	}
	if s.RegistrationInfo != registration {
		t.Errorf("expected registration info reloaded, got %q", s.RegistrationInfo)
	}
}

func TestHelp(t *testing.T) {
	h := atLeaf(t)
	out := h.handle(h.ev(EventHelp))
	if out.State != AwaitingEvidence {
		t.Errorf("expected state unchanged, got %s", out.State)
	}
	if got := h.chat.last().reply.Text; got != msgHelp {
		t.Errorf("expected help text, got %q", got)
	}
}

func TestConcurrentUsers(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := session.Identity{Username: fmt.Sprintf("user%d", i)}
			ev := func(kind EventKind) Event { return Event{Kind: kind, ChatID: int64(i), Identity: id} }

			reg := ev(EventText)
			reg.Text = fmt.Sprintf("Kullanici %d, 0555123456%d", i, i)
			h.handle(reg)
			for _, label := range []string{"Risk", "Elektrik tel temasi"} {
				b := ev(EventButton)
				b.Label = label
				h.handle(b)
			}
			loc := ev(EventLocation)
			loc.Location = session.Coordinate{Latitude: 37, Longitude: float64(i)}
			h.handle(loc)
			p := ev(EventPhoto)
			p.Photo = session.PhotoRef{FileID: fmt.Sprintf("f%d", i)}
			h.handle(p)
			txt := ev(EventText)
			txt.Text = "direk devrilmis"
			if out := h.handle(txt); !out.Submitted() {
				t.Errorf("user%d: expected Submitted, got %s", i, out.State)
			}
		}(i)
	}
	wg.Wait()

	if n := len(h.mem.ItemsOfType(schema.TypeReport)); n != 8 {
		t.Errorf("expected 8 reports, got %d", n)
	}
	if h.sessions.Len() != 0 {
		t.Errorf("expected all sessions cleared, got %d", h.sessions.Len())
	}
}
