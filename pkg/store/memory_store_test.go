package store

import (
	"errors"
	"testing"
	"time"

	"advisorai/pkg/domain"
)

func newTestConversation(t *testing.T, m *MemoryStore, userID string) domain.Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:        domain.NewID(),
		UserID:    userID,
		Title:     "新对话",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.CreateConversation(conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func TestMemoryStoreListNewestFirst(t *testing.T) {
	m := NewMemoryStore()
	first := newTestConversation(t, m, "u1")
	second := newTestConversation(t, m, "u1")
	newTestConversation(t, m, "someone-else")

	convs, err := m.ListConversationsByUser("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}
	if convs[0].ID != second.ID || convs[1].ID != first.ID {
		t.Fatalf("order = [%s %s], want newest first", convs[0].ID, convs[1].ID)
	}
}

func TestMemoryStoreAppendUserMessageSetsTitleOnce(t *testing.T) {
	m := NewMemoryStore()
	conv := newTestConversation(t, m, "u1")

	if _, err := m.AppendUserMessage(conv.ID, "How do I buy a used car in Toronto?", false); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _, _ := m.GetConversation(conv.ID)
	if got.Title != "How do I buy a used " {
		t.Fatalf("title = %q", got.Title)
	}

	if _, err := m.AppendUserMessage(conv.ID, "Second message should not retitle", false); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _, _ = m.GetConversation(conv.ID)
	if got.Title != "How do I buy a used " {
		t.Fatalf("title changed on second message: %q", got.Title)
	}
}

func TestMemoryStoreHiddenMessageKeepsTitle(t *testing.T) {
	m := NewMemoryStore()
	conv := domain.Conversation{
		ID: domain.NewID(), UserID: "u1", Title: "机票咨询",
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	if err := m.CreateConversation(conv); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.AppendUserMessage(conv.ID, "canned topic prompt", true); err != nil {
		t.Fatalf("append hidden: %v", err)
	}
	got, _, _ := m.GetConversation(conv.ID)
	if got.Title != "机票咨询" {
		t.Fatalf("hidden message overwrote topic title: %q", got.Title)
	}
}

func TestMemoryStoreAppendToDeletedConversation(t *testing.T) {
	m := NewMemoryStore()
	conv := newTestConversation(t, m, "u1")
	if err := m.DeleteConversation(conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.AppendUserMessage(conv.ID, "hello", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("append after delete = %v, want ErrNotFound", err)
	}
	if err := m.DeleteConversation(conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSingleStreamingInvariant(t *testing.T) {
	m := NewMemoryStore()
	conv := newTestConversation(t, m, "u1")

	reply, err := m.BeginAssistantReply(conv.ID)
	if err != nil {
		t.Fatalf("begin reply: %v", err)
	}
	if _, err := m.BeginAssistantReply(conv.ID); !errors.Is(err, ErrAlreadyStreaming) {
		t.Fatalf("second begin = %v, want ErrAlreadyStreaming", err)
	}

	// Completing the stream releases the invariant.
	if err := m.ApplyStreamSnapshot(conv.ID, reply.ID, domain.Snapshot{RawText: "done", IsStreaming: false}); err != nil {
		t.Fatalf("apply final snapshot: %v", err)
	}
	if _, err := m.BeginAssistantReply(conv.ID); err != nil {
		t.Fatalf("begin after completion: %v", err)
	}

	msgs, err := m.ListMessages(conv.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	streaming := 0
	for _, msg := range msgs {
		if msg.IsStreaming {
			streaming++
		}
	}
	if streaming != 1 {
		t.Fatalf("streaming messages = %d, want 1", streaming)
	}
}

func TestMemoryStoreSnapshotAgainstVanishedTargetsIsNoop(t *testing.T) {
	m := NewMemoryStore()
	conv := newTestConversation(t, m, "u1")
	reply, err := m.BeginAssistantReply(conv.ID)
	if err != nil {
		t.Fatalf("begin reply: %v", err)
	}

	if err := m.DeleteConversation(conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.ApplyStreamSnapshot(conv.ID, reply.ID, domain.Snapshot{RawText: "late"}); err != nil {
		t.Fatalf("snapshot after delete should be a no-op, got: %v", err)
	}
	if err := m.TouchConversation(conv.ID, time.Now()); err != nil {
		t.Fatalf("touch after delete should be a no-op, got: %v", err)
	}

	// Unknown message ID inside a live conversation is also a no-op.
	conv2 := newTestConversation(t, m, "u1")
	if err := m.ApplyStreamSnapshot(conv2.ID, "missing-message", domain.Snapshot{RawText: "late"}); err != nil {
		t.Fatalf("snapshot for missing message should be a no-op, got: %v", err)
	}
}

func TestMemoryStoreSnapshotUpdatesMessage(t *testing.T) {
	m := NewMemoryStore()
	conv := newTestConversation(t, m, "u1")
	reply, err := m.BeginAssistantReply(conv.ID)
	if err != nil {
		t.Fatalf("begin reply: %v", err)
	}

	snap := domain.Snapshot{
		RawText:     "Hello [STEP: 1/2]",
		Sources:     []domain.GroundingSource{{Title: "Src", URI: "https://example.com"}},
		IsStreaming: true,
	}
	if err := m.ApplyStreamSnapshot(conv.ID, reply.ID, snap); err != nil {
		t.Fatalf("apply: %v", err)
	}
	msgs, _ := m.ListMessages(conv.ID)
	got := msgs[len(msgs)-1]
	if got.Content != snap.RawText {
		t.Fatalf("content = %q, want raw text", got.Content)
	}
	if len(got.Sources) != 1 || got.Sources[0].URI != "https://example.com" {
		t.Fatalf("sources = %v", got.Sources)
	}
	if !got.IsStreaming {
		t.Fatal("message should still be streaming")
	}
}

func TestMemoryStoreUsers(t *testing.T) {
	m := NewMemoryStore()
	u := domain.User{ID: "u1", Email: "a@example.com", Username: "a", Quota: 20}
	if err := m.SaveUser(u); err != nil {
		t.Fatalf("save user: %v", err)
	}
	ok, err := m.HasUserEmail("a@example.com")
	if err != nil || !ok {
		t.Fatalf("has email = %v %v, want true", ok, err)
	}
	got, ok, err := m.GetUserByEmail("a@example.com")
	if err != nil || !ok || got.ID != "u1" {
		t.Fatalf("get by email = %+v %v %v", got, ok, err)
	}
	if _, ok, _ := m.GetUserByID("nope"); ok {
		t.Fatal("unknown user id should not resolve")
	}
}
