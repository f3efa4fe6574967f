package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/adapta/internal/events"
	"github.com/MikeSquared-Agency/adapta/internal/inference"
	"github.com/MikeSquared-Agency/adapta/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeInference struct {
	answer   string
	err      error
	requests []inference.AskRequest
}

func (f *fakeInference) Ask(_ context.Context, req inference.AskRequest) (*inference.Answer, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &inference.Answer{Answer: f.answer, Status: "success"}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return p.err
}

func (p *recordingPublisher) Close() {}

func newTestService(llm *fakeInference) (*Service, *store.Memory, *recordingPublisher) {
	mem := store.NewMemory()
	pub := &recordingPublisher{}
	svc := New(mem, llm, pub, discardLogger())

	// Strictly increasing timestamps keep ordering deterministic.
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var tick int
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return svc, mem, pub
}

func TestAsk_NewConversation(t *testing.T) {
	llm := &fakeInference{answer: "Raise the embankments."}
	svc, _, pub := newTestService(llm)
	ctx := context.Background()

	res, err := svc.Ask(ctx, "alice", "Floods in Tobolsk", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !res.Created {
		t.Error("expected a new conversation")
	}
	if res.Answer != "Raise the embankments." || res.Status != "success" {
		t.Errorf("unexpected result: %+v", res)
	}

	if llm.requests[0].Context != "" || llm.requests[0].ConversationID != "" {
		t.Errorf("expected no context for a fresh conversation, got %+v", llm.requests[0])
	}

	c, err := svc.Conversation(ctx, "alice", res.ConversationID)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if c.Title != "Floods in Tobolsk" {
		t.Errorf("expected title to equal the question, got %q", c.Title)
	}
	if len(c.Messages) != 1 {
		t.Errorf("expected 1 message, got %d", len(c.Messages))
	}

	want := []string{events.SubjectConversationCreated, events.SubjectMessageRecorded}
	if strings.Join(pub.subjects, ",") != strings.Join(want, ",") {
		t.Errorf("expected events %v, got %v", want, pub.subjects)
	}
}

func TestAsk_SendsLastThreePairs(t *testing.T) {
	llm := &fakeInference{answer: "ok"}
	svc, _, _ := newTestService(llm)
	ctx := context.Background()

	res, err := svc.Ask(ctx, "alice", "q1", nil)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	id := res.ConversationID
	for _, q := range []string{"q2", "q3", "q4", "q5"} {
		if _, err := svc.Ask(ctx, "alice", q, &id); err != nil {
			t.Fatalf("Ask %s: %v", q, err)
		}
	}

	last := llm.requests[len(llm.requests)-1]
	if last.Question != "q5" {
		t.Errorf("expected question sent unchanged, got %q", last.Question)
	}
	if last.ConversationID != id.String() {
		t.Errorf("expected conversation id %s, got %q", id, last.ConversationID)
	}
	want := "Q: q2\nA: ok\n\nQ: q3\nA: ok\n\nQ: q4\nA: ok"
	if last.Context != want {
		t.Errorf("context = %q, want %q", last.Context, want)
	}
}

func TestAsk_ForeignConversation(t *testing.T) {
	llm := &fakeInference{answer: "ok"}
	svc, _, _ := newTestService(llm)
	ctx := context.Background()

	res, _ := svc.Ask(ctx, "alice", "private question", nil)
	id := res.ConversationID
	calls := len(llm.requests)

	_, err := svc.Ask(ctx, "mallory", "let me in", &id)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(llm.requests) != calls {
		t.Error("inference must not be called for a foreign conversation")
	}

	c, _ := svc.Conversation(ctx, "alice", id)
	if len(c.Messages) != 1 {
		t.Errorf("foreign ask mutated the conversation: %d messages", len(c.Messages))
	}
}

func TestAsk_InferenceFailureStoresNothing(t *testing.T) {
	llm := &fakeInference{err: inference.ErrUnreachable}
	svc, _, pub := newTestService(llm)
	ctx := context.Background()

	_, err := svc.Ask(ctx, "alice", "Will it flood?", nil)
	if !errors.Is(err, inference.ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}

	list, _ := svc.Conversations(ctx, "alice")
	if len(list) != 0 {
		t.Errorf("expected no conversations after failed ask, got %d", len(list))
	}
	if len(pub.subjects) != 0 {
		t.Errorf("expected no events, got %v", pub.subjects)
	}
}

func TestAsk_PublishFailureIsNotSurfaced(t *testing.T) {
	llm := &fakeInference{answer: "ok"}
	svc, _, pub := newTestService(llm)
	pub.err = errors.New("nats down")

	if _, err := svc.Ask(context.Background(), "alice", "still works?", nil); err != nil {
		t.Fatalf("expected publish failures to be swallowed, got %v", err)
	}
}

func TestNewConversation_TitledByFirstQuestion(t *testing.T) {
	llm := &fakeInference{answer: "ok"}
	svc, _, pub := newTestService(llm)
	ctx := context.Background()

	c, err := svc.NewConversation(ctx, "alice")
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if c.Title != "" {
		t.Errorf("expected empty title, got %q", c.Title)
	}

	res, err := svc.Ask(ctx, "alice", "Heat stress in Omsk", &c.ID)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Created {
		t.Error("expected the existing conversation to be used")
	}

	got, _ := svc.Conversation(ctx, "alice", c.ID)
	if got.Title != "Heat stress in Omsk" {
		t.Errorf("expected title backfilled, got %q", got.Title)
	}
	if pub.subjects[0] != events.SubjectConversationCreated {
		t.Errorf("expected created event first, got %v", pub.subjects)
	}
}

func TestDeleteConversation(t *testing.T) {
	llm := &fakeInference{answer: "ok"}
	svc, _, pub := newTestService(llm)
	ctx := context.Background()

	res, _ := svc.Ask(ctx, "alice", "temporary", nil)

	if err := svc.DeleteConversation(ctx, "bob", res.ConversationID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}
	if err := svc.DeleteConversation(ctx, "alice", res.ConversationID); err != nil {
		t.Fatalf("DeleteConversation: %v", err)
	}
	if _, err := svc.Conversation(ctx, "alice", res.ConversationID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if pub.subjects[len(pub.subjects)-1] != events.SubjectConversationDeleted {
		t.Errorf("expected deleted event, got %v", pub.subjects)
	}
}

func TestConversations_MostRecentFirst(t *testing.T) {
	llm := &fakeInference{answer: "ok"}
	svc, _, _ := newTestService(llm)
	ctx := context.Background()

	first, _ := svc.Ask(ctx, "alice", "first", nil)
	_, _ = svc.Ask(ctx, "alice", "second", nil)
	_, _ = svc.Ask(ctx, "alice", "follow-up", &first.ConversationID)

	list, err := svc.Conversations(ctx, "alice")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ConversationID {
		t.Fatalf("expected first conversation on top after follow-up, got %+v", list)
	}
	if list[0].PairCount != 2 || list[0].LastQuestion != "follow-up" {
		t.Errorf("unexpected summary: %+v", list[0])
	}
}

func TestBuildContext(t *testing.T) {
	tests := []struct {
		name    string
		history []store.Message
		want    string
	}{
		{"empty", nil, ""},
		{"one", []store.Message{{Question: "a", Answer: "b"}}, "Q: a\nA: b"},
		{
			"window",
			[]store.Message{
				{Question: "1", Answer: "x"}, {Question: "2", Answer: "x"},
				{Question: "3", Answer: "x"}, {Question: "4", Answer: "x"},
			},
			"Q: 2\nA: x\n\nQ: 3\nA: x\n\nQ: 4\nA: x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildContext(tt.history); got != tt.want {
				t.Errorf("BuildContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTitle(t *testing.T) {
	long := strings.Repeat("ж", 60)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "Floods in Tobolsk", "Floods in Tobolsk"},
		{"trimmed", "  spaced out  ", "spaced out"},
		{"exactly fifty", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"cut by runes", long, strings.Repeat("ж", 50) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Title(tt.in); got != tt.want {
				t.Errorf("Title(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAsk_UnknownConversationID(t *testing.T) {
	svc, _, _ := newTestService(&fakeInference{answer: "ok"})
	id := uuid.New()
	if _, err := svc.Ask(context.Background(), "alice", "hello?", &id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
