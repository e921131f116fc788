package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"match-chatter/internal/enrich"
	"match-chatter/internal/history"
	"match-chatter/internal/orchestrator"
	"match-chatter/internal/prompt"
	"match-chatter/internal/session"
	"match-chatter/internal/storage"
)

type fakeBackend struct {
	mu     sync.Mutex
	calls  int
	last   prompt.Prompt
	result orchestrator.Result
	err    error
}

func (f *fakeBackend) Complete(_ context.Context, _ *session.Session, p prompt.Prompt) (orchestrator.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = p
	return f.result, f.err
}

type fakeGateway struct {
	hits    map[string]*enrich.Result
	queried []string
}

func (g *fakeGateway) Lookup(_ context.Context, entity string) (*enrich.Result, bool) {
	g.queried = append(g.queried, entity)
	r, ok := g.hits[entity]
	return r, ok
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memRecorder) AppendInteraction(ev storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) LoadInteractions() ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event(nil), m.events...), nil
}

type fixture struct {
	engine   *Engine
	registry *session.Registry
	store    history.Store
	backend  *fakeBackend
	gateway  *fakeGateway
	recorder *memRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := history.NewMemoryStore(10)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	reg := session.NewRegistry(store, nil, nil)
	f := &fixture{
		registry: reg,
		store:    store,
		backend:  &fakeBackend{result: orchestrator.Result{Text: "Победа Зенита 2:1"}},
		gateway:  &fakeGateway{hits: map[string]*enrich.Result{}},
		recorder: &memRecorder{},
	}
	asm := prompt.NewAssembler(store, 10, nil, prompt.NewClassifier(prompt.DefaultTriggers))
	orch := orchestrator.New(f.backend, reg, store)
	f.engine = New(reg, asm, orch, WithGateway(f.gateway), WithRecorder(f.recorder), WithLocation(time.UTC))
	f.engine.now = func() time.Time { return time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestHandle_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply, err := f.engine.Handle(ctx, "42", "Зенит - Спартак завтра 19:00")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if reply.Text != "Победа Зенита 2:1" || reply.Persona != prompt.PersonaBrief || reply.RequestID == "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if reply.Match.Home != "Зенит" || reply.Match.Away != "Спартак" || reply.Match.Date != "15.10.2026" || reply.Match.Time != "19:00" {
		t.Fatalf("unexpected match: %+v", reply.Match)
	}
	if !strings.Contains(f.backend.last.User.Content, "Зенит — Спартак") {
		t.Fatalf("user turn not augmented: %q", f.backend.last.User.Content)
	}

	turns, _ := f.store.Recent(ctx, "42", 0)
	if len(turns) != 2 {
		t.Fatalf("history: %+v", turns)
	}

	events, _ := f.recorder.LoadInteractions()
	if len(events) != 1 {
		t.Fatalf("events: %+v", events)
	}
	ev := events[0]
	if ev.Outcome != storage.OutcomeOK || ev.RequestID != reply.RequestID || ev.Persona != "brief" || ev.AssistantResponse != reply.Text {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestHandle_EnrichmentHomeThenAway(t *testing.T) {
	f := newFixture(t)
	away := &enrich.Result{Team: "Спартак", Fixtures: []enrich.Fixture{{
		Date: time.Date(2026, 10, 15, 19, 0, 0, 0, time.UTC), Home: "Зенит", Away: "Спартак",
	}}}
	f.gateway.hits["Спартак"] = away

	if _, err := f.engine.Handle(context.Background(), "42", "Зенит - Спартак"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.gateway.queried) != 2 || f.gateway.queried[0] != "Зенит" || f.gateway.queried[1] != "Спартак" {
		t.Fatalf("lookup order: %v", f.gateway.queried)
	}
	if !strings.HasSuffix(f.backend.last.User.Content, away.Text()) {
		t.Fatalf("enrichment not appended: %q", f.backend.last.User.Content)
	}

	// a home hit stops the lookup
	f.gateway.hits["Зенит"] = away
	f.gateway.queried = nil
	if _, err := f.engine.Handle(context.Background(), "43", "Зенит - Спартак"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.gateway.queried) != 1 {
		t.Fatalf("away must not be queried after a home hit: %v", f.gateway.queried)
	}
}

func TestHandle_NoParticipantsSkipsEnrichment(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Handle(context.Background(), "42", "кто выиграет сегодня?"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(f.gateway.queried) != 0 {
		t.Fatalf("gateway queried without participants: %v", f.gateway.queried)
	}
}

func TestHandle_RejectsWhileInFlight(t *testing.T) {
	f := newFixture(t)
	if !f.registry.TryAcquire("42") {
		t.Fatalf("acquire")
	}

	_, err := f.engine.Handle(context.Background(), "42", "ещё вопрос")
	if !errors.Is(err, orchestrator.ErrConcurrentRequest) {
		t.Fatalf("want ErrConcurrentRequest, got %v", err)
	}
	if f.backend.calls != 0 {
		t.Fatalf("backend must not be called")
	}
	if UserMessage(err) != MsgConcurrent {
		t.Fatalf("unexpected message: %q", UserMessage(err))
	}
	events, _ := f.recorder.LoadInteractions()
	if len(events) != 1 || events[0].Outcome != storage.OutcomeRejected {
		t.Fatalf("events: %+v", events)
	}

	// other users are unaffected
	if _, err := f.engine.Handle(context.Background(), "7", "привет"); err != nil {
		t.Fatalf("other session: %v", err)
	}
}

func TestHandle_TimeoutKeepsUserTurn(t *testing.T) {
	f := newFixture(t)
	f.backend.err = orchestrator.ErrTimeout

	reply, err := f.engine.Handle(context.Background(), "42", "объясни подробно")
	if !errors.Is(err, orchestrator.ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if reply.Text != "" || reply.Persona != prompt.PersonaDetailed {
		t.Fatalf("no partial reply expected: %+v", reply)
	}
	if UserMessage(err) != MsgTimeout {
		t.Fatalf("unexpected message: %q", UserMessage(err))
	}
	turns, _ := f.store.Recent(context.Background(), "42", 0)
	if len(turns) != 1 || turns[0].Role != history.RoleUser {
		t.Fatalf("history: %+v", turns)
	}
	events, _ := f.recorder.LoadInteractions()
	if events[0].Outcome != storage.OutcomeTimeout || events[0].Persona != "detailed" {
		t.Fatalf("event: %+v", events[0])
	}
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.engine.Handle(ctx, "42", "Зенит - Спартак"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := f.engine.Reset(ctx, "42"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	turns, _ := f.store.Recent(ctx, "42", 0)
	if len(turns) != 0 || f.registry.Len() != 0 {
		t.Fatalf("reset left state: %+v", turns)
	}
	if _, err := f.engine.Handle(ctx, "42", "снова"); err != nil {
		t.Fatalf("handle after reset: %v", err)
	}
	if len(f.backend.last.Messages) != 2 {
		t.Fatalf("new session must start without history: %+v", f.backend.last.Messages)
	}
}

func TestUserMessage(t *testing.T) {
	cases := map[error]string{
		nil:                               "",
		orchestrator.ErrTimeout:           MsgTimeout,
		orchestrator.ErrConcurrentRequest: MsgConcurrent,
		orchestrator.ErrService:           MsgGeneric,
		errors.New("anything else"):       MsgGeneric,
	}
	for err, want := range cases {
		if got := UserMessage(err); got != want {
			t.Fatalf("UserMessage(%v) = %q, want %q", err, got, want)
		}
	}
}
