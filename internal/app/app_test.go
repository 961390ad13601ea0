package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"advisorai/pkg/ai"
	"advisorai/pkg/domain"
	"advisorai/pkg/store"
)

type fakeStream struct {
	chunks []domain.StreamChunk
	err    error
	i      int
}

func (s *fakeStream) Recv() (domain.StreamChunk, error) {
	if s.i < len(s.chunks) {
		chunk := s.chunks[s.i]
		s.i++
		return chunk, nil
	}
	if s.err != nil {
		return domain.StreamChunk{}, s.err
	}
	return domain.StreamChunk{}, io.EOF
}

func (s *fakeStream) Close() error { return nil }

type fakeGenerator struct {
	stream    *fakeStream
	openErr   error
	lastTurns []ai.Turn
	lastSys   string
}

func (g *fakeGenerator) StreamReply(_ context.Context, systemPrompt string, turns []ai.Turn) (ai.Stream, error) {
	g.lastSys = systemPrompt
	g.lastTurns = turns
	if g.openErr != nil {
		return nil, g.openErr
	}
	return g.stream, nil
}

// flakyHistoryStore fails a fixed number of ListMessages calls, then
// delegates to the wrapped store.
type flakyHistoryStore struct {
	store.Store
	failures int
}

func (s *flakyHistoryStore) ListMessages(conversationID string) ([]domain.Message, error) {
	if s.failures > 0 {
		s.failures--
		return nil, fmt.Errorf("transient store error")
	}
	return s.Store.ListMessages(conversationID)
}

func newTestApp(t *testing.T, gen ai.Generator) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := New(Config{
		Store:     mem,
		Generator: gen,
		JWTSecret: "a-test-secret-long-enough",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem
}

func signUpTestUser(t *testing.T, a *App) domain.User {
	t.Helper()
	user, _, err := a.SignUp("user@example.com", "user", "longenough")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	return user
}

func TestSignUpAndLogin(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{stream: &fakeStream{}})

	user, token, err := a.SignUp("User@Example.com", "", "longenough")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if user.Email != "user@example.com" {
		t.Fatalf("email = %q, want lowercased", user.Email)
	}
	if user.Username != "user" {
		t.Fatalf("username = %q, want derived from email", user.Username)
	}
	if user.Quota != SignupQuota {
		t.Fatalf("quota = %d, want %d", user.Quota, SignupQuota)
	}
	if token == "" {
		t.Fatal("expected session token")
	}

	if _, _, err := a.SignUp("user@example.com", "", "longenough"); !errors.Is(err, ErrEmailAlreadyExists) {
		t.Fatalf("duplicate signup = %v, want ErrEmailAlreadyExists", err)
	}

	got, token2, err := a.Login("user@example.com", "longenough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got.ID != user.ID || token2 == "" {
		t.Fatalf("login = %+v %q", got, token2)
	}
	if _, _, err := a.Login("user@example.com", "wrongpass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := a.Login("nobody@example.com", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email = %v, want ErrInvalidCredentials", err)
	}

	verified, err := a.VerifyToken(token)
	if err != nil || verified.ID != user.ID {
		t.Fatalf("verify token = %+v %v", verified, err)
	}
}

func TestSendMessageStreamsAndSettles(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{chunks: []domain.StreamChunk{
		{Text: "Used cars are "},
		{Text: "cheaper [STEP: 1/1]", Sources: []domain.GroundingSource{{Title: "KBB", URI: "https://kbb.com"}}},
	}}}
	a, _ := newTestApp(t, gen)
	user := signUpTestUser(t, a)

	var snaps []domain.Snapshot
	conv, err := a.SendMessage(context.Background(), user, "", "How do I buy a used car in Toronto?", domain.LangEN, func(s domain.Snapshot) {
		snaps = append(snaps, s)
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if conv.Title != "How do I buy a used " {
		t.Fatalf("title = %q", conv.Title)
	}

	// Two streaming snapshots plus the final settled one.
	if len(snaps) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(snaps))
	}
	final := snaps[len(snaps)-1]
	if final.IsStreaming {
		t.Fatal("final snapshot still streaming")
	}
	if final.DisplayText != "Used cars are cheaper " {
		t.Fatalf("display = %q", final.DisplayText)
	}
	if final.Step != "1/1" {
		t.Fatalf("step = %q", final.Step)
	}
	if len(final.Sources) != 1 || final.Sources[0].URI != "https://kbb.com" {
		t.Fatalf("sources = %v", final.Sources)
	}

	fresh, _, _ := a.store.GetUserByID(user.ID)
	if fresh.Quota != SignupQuota-1 {
		t.Fatalf("quota = %d, want %d", fresh.Quota, SignupQuota-1)
	}

	msgs, _ := a.store.ListMessages(conv.ID)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want user + assistant", len(msgs))
	}
	if msgs[1].Content != "Used cars are cheaper [STEP: 1/1]" {
		t.Fatalf("persisted raw = %q", msgs[1].Content)
	}
	if msgs[1].IsStreaming {
		t.Fatal("assistant message still marked streaming")
	}
}

func TestSendMessageFailureReplacesPartialText(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{
		chunks: []domain.StreamChunk{{Text: "partial ", Sources: []domain.GroundingSource{{Title: "S", URI: "https://s.example"}}}},
		err:    fmt.Errorf("boom"),
	}}
	a, _ := newTestApp(t, gen)
	user := signUpTestUser(t, a)

	var snaps []domain.Snapshot
	conv, err := a.SendMessage(context.Background(), user, "", "hello", domain.LangZH, func(s domain.Snapshot) {
		snaps = append(snaps, s)
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	final := snaps[len(snaps)-1]
	if final.DisplayText != "抱歉，检索实时信息时出现错误。" {
		t.Fatalf("display = %q, want apology", final.DisplayText)
	}
	if final.IsStreaming {
		t.Fatal("failed snapshot still streaming")
	}
	if len(final.Sources) != 0 {
		t.Fatalf("failure kept sources: %v", final.Sources)
	}

	msgs, _ := a.store.ListMessages(conv.ID)
	if got := msgs[len(msgs)-1].Content; got != "抱歉，检索实时信息时出现错误。" {
		t.Fatalf("persisted content = %q, want apology", got)
	}

	// Failed replies are free.
	fresh, _, _ := a.store.GetUserByID(user.ID)
	if fresh.Quota != SignupQuota {
		t.Fatalf("quota = %d, want unchanged %d", fresh.Quota, SignupQuota)
	}
}

func TestSendMessageOpenErrorFailsWithApology(t *testing.T) {
	gen := &fakeGenerator{openErr: fmt.Errorf("connect refused")}
	a, _ := newTestApp(t, gen)
	user := signUpTestUser(t, a)

	var snaps []domain.Snapshot
	if _, err := a.SendMessage(context.Background(), user, "", "hello", domain.LangEN, func(s domain.Snapshot) {
		snaps = append(snaps, s)
	}); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want the failure snapshot only", len(snaps))
	}
	if snaps[0].DisplayText != "Sorry, an error occurred while searching for real-time information." {
		t.Fatalf("display = %q", snaps[0].DisplayText)
	}
}

func TestSendMessageHistoryFailureSettlesReply(t *testing.T) {
	mem := store.NewMemoryStore()
	flaky := &flakyHistoryStore{Store: mem, failures: 1}
	gen := &fakeGenerator{stream: &fakeStream{chunks: []domain.StreamChunk{{Text: "ok"}}}}
	a, err := New(Config{
		Store:     flaky,
		Generator: gen,
		JWTSecret: "a-test-secret-long-enough",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	user := signUpTestUser(t, a)

	var snaps []domain.Snapshot
	conv, err := a.SendMessage(context.Background(), user, "", "hello", domain.LangEN, func(s domain.Snapshot) {
		snaps = append(snaps, s)
	})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	final := snaps[len(snaps)-1]
	if final.IsStreaming {
		t.Fatal("reply left streaming after history failure")
	}
	if final.DisplayText != "Sorry, an error occurred while searching for real-time information." {
		t.Fatalf("display = %q, want apology", final.DisplayText)
	}
	msgs, _ := mem.ListMessages(conv.ID)
	if last := msgs[len(msgs)-1]; last.IsStreaming {
		t.Fatal("persisted assistant message still marked streaming")
	}
	fresh, _, _ := mem.GetUserByID(user.ID)
	if fresh.Quota != SignupQuota {
		t.Fatalf("quota = %d, want unchanged %d", fresh.Quota, SignupQuota)
	}

	// The streaming slot is free again once the store recovers.
	gen.stream = &fakeStream{chunks: []domain.StreamChunk{{Text: "recovered"}}}
	if _, err := a.SendMessage(context.Background(), user, conv.ID, "again", domain.LangEN, nil); err != nil {
		t.Fatalf("send after recovery: %v", err)
	}
}

func TestSendMessageQuotaGate(t *testing.T) {
	a, mem := newTestApp(t, &fakeGenerator{stream: &fakeStream{}})
	user := signUpTestUser(t, a)

	drained := user
	drained.Quota = 0
	if err := mem.SaveUser(drained); err != nil {
		t.Fatalf("save user: %v", err)
	}

	if _, err := a.SendMessage(context.Background(), drained, "", "hello", domain.LangEN, nil); !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("send with zero quota = %v, want ErrQuotaExhausted", err)
	}
	// The gate fires before anything is written.
	convs, _ := mem.ListConversationsByUser(user.ID)
	if len(convs) != 0 {
		t.Fatalf("conversations created despite quota gate: %d", len(convs))
	}
}

func TestSendMessageTurnInFlight(t *testing.T) {
	a, mem := newTestApp(t, &fakeGenerator{stream: &fakeStream{}})
	user := signUpTestUser(t, a)

	conv, err := a.SendMessage(context.Background(), user, "", "first", domain.LangEN, nil)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	// Occupy the streaming slot as a concurrent turn would.
	if _, err := mem.BeginAssistantReply(conv.ID); err != nil {
		t.Fatalf("begin reply: %v", err)
	}
	if _, err := a.SendMessage(context.Background(), user, conv.ID, "second", domain.LangEN, nil); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("concurrent send = %v, want ErrTurnInFlight", err)
	}
}

func TestSendMessageReplaysHistory(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{chunks: []domain.StreamChunk{{Text: "first reply"}}}}
	a, _ := newTestApp(t, gen)
	user := signUpTestUser(t, a)

	conv, err := a.SendMessage(context.Background(), user, "", "first question", domain.LangEN, nil)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	gen.stream = &fakeStream{chunks: []domain.StreamChunk{{Text: "second reply"}}}
	if _, err := a.SendMessage(context.Background(), user, conv.ID, "second question", domain.LangEN, nil); err != nil {
		t.Fatalf("second send: %v", err)
	}

	// first question, first reply, second question.
	if len(gen.lastTurns) != 3 {
		t.Fatalf("turns = %d, want 3", len(gen.lastTurns))
	}
	if gen.lastTurns[1].Role != ai.RoleModel || gen.lastTurns[1].Text != "first reply" {
		t.Fatalf("turn 1 = %+v", gen.lastTurns[1])
	}
	if !strings.Contains(gen.lastSys, "[CHART_DATA:") {
		t.Fatalf("system prompt missing marker grammar: %q", gen.lastSys)
	}
}

func TestSelectTopic(t *testing.T) {
	gen := &fakeGenerator{stream: &fakeStream{chunks: []domain.StreamChunk{{Text: "flight tips"}}}}
	a, _ := newTestApp(t, gen)
	user := signUpTestUser(t, a)

	conv, err := a.SelectTopic(context.Background(), user, "flights", domain.LangZH, nil)
	if err != nil {
		t.Fatalf("select topic: %v", err)
	}
	got, err := a.GetConversation(user.ID, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if got.Title != "机票咨询" {
		t.Fatalf("title = %q, want topic title", got.Title)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages = %d", len(got.Messages))
	}
	if !got.Messages[0].Hidden {
		t.Fatal("topic prompt should be hidden")
	}
	// The hidden prompt still reaches the model.
	if len(gen.lastTurns) != 1 || !strings.Contains(gen.lastTurns[0].Text, "特价机票") {
		t.Fatalf("turns = %+v", gen.lastTurns)
	}

	if _, err := a.SelectTopic(context.Background(), user, "no-such-topic", domain.LangZH, nil); !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("unknown topic = %v, want ErrTopicNotFound", err)
	}
}

func TestConversationOwnership(t *testing.T) {
	a, _ := newTestApp(t, &fakeGenerator{stream: &fakeStream{}})
	owner := signUpTestUser(t, a)
	other, _, err := a.SignUp("other@example.com", "other", "longenough")
	if err != nil {
		t.Fatalf("sign up other: %v", err)
	}

	conv, err := a.SendMessage(context.Background(), owner, "", "mine", domain.LangEN, nil)
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if _, err := a.GetConversation(other.ID, conv.ID); !errors.Is(err, ErrConversationForbidden) {
		t.Fatalf("foreign read = %v, want ErrConversationForbidden", err)
	}
	if err := a.DeleteConversation(other.ID, conv.ID); !errors.Is(err, ErrConversationForbidden) {
		t.Fatalf("foreign delete = %v, want ErrConversationForbidden", err)
	}
	if err := a.DeleteConversation(owner.ID, conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := a.GetConversation(owner.ID, conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("read after delete = %v, want ErrConversationNotFound", err)
	}
}
