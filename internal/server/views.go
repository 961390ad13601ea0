package server

import (
	"time"

	"advisorai/pkg/domain"
	"advisorai/pkg/extract"
	"advisorai/pkg/store"
)

// messageView is a transcript entry as the client renders it: directives
// stripped out of the text and surfaced as structured fields. Hidden
// messages never reach a view.
type messageView struct {
	ID          string                   `json:"id"`
	Role        domain.Role              `json:"role"`
	Content     string                   `json:"content"`
	CreatedAt   time.Time                `json:"createdAt"`
	IsStreaming bool                     `json:"isStreaming,omitempty"`
	Sources     []domain.GroundingSource `json:"sources,omitempty"`
	Step        string                   `json:"step,omitempty"`
	Chart       *domain.ChartData        `json:"chart,omitempty"`
	Suggestions []string                 `json:"suggestions,omitempty"`
	Options     []string                 `json:"options,omitempty"`
}

type conversationView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	TopicID   string        `json:"topicId,omitempty"`
	Messages  []messageView `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type conversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	TopicID   string    `json:"topicId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type bucketsView struct {
	Today     []conversationSummary `json:"today"`
	Yesterday []conversationSummary `json:"yesterday"`
	Earlier   []conversationSummary `json:"earlier"`
}

func toMessageView(msg domain.Message) messageView {
	view := messageView{
		ID:          msg.ID,
		Role:        msg.Role,
		Content:     msg.Content,
		CreatedAt:   msg.CreatedAt,
		IsStreaming: msg.IsStreaming,
		Sources:     msg.Sources,
	}
	if msg.Role == domain.RoleAssistant {
		res := extract.Extract(msg.Content)
		view.Content = res.DisplayText
		view.Step = res.Step
		view.Chart = res.Chart
		view.Suggestions = res.Suggestions
		view.Options = res.Options
	}
	return view
}

func toConversationView(conv domain.Conversation) conversationView {
	messages := make([]messageView, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		if msg.Hidden {
			continue
		}
		messages = append(messages, toMessageView(msg))
	}
	return conversationView{
		ID:        conv.ID,
		Title:     conv.Title,
		TopicID:   conv.TopicID,
		Messages:  messages,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

func toSummaries(convs []domain.Conversation) []conversationSummary {
	out := make([]conversationSummary, 0, len(convs))
	for _, conv := range convs {
		out = append(out, conversationSummary{
			ID:        conv.ID,
			Title:     conv.Title,
			TopicID:   conv.TopicID,
			UpdatedAt: conv.UpdatedAt,
		})
	}
	return out
}

func toBucketsView(b store.Buckets) bucketsView {
	return bucketsView{
		Today:     toSummaries(b.Today),
		Yesterday: toSummaries(b.Yesterday),
		Earlier:   toSummaries(b.Earlier),
	}
}
