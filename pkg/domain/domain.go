package domain

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Language string

const (
	LangZH Language = "zh"
	LangEN Language = "en"
)

// NormalizeLanguage maps arbitrary input to a supported language, defaulting to zh.
func NormalizeLanguage(raw string) Language {
	switch Language(strings.ToLower(strings.TrimSpace(raw))) {
	case LangEN:
		return LangEN
	default:
		return LangZH
	}
}

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// GroundingSource is a citation attached to an assistant reply.
// Identity is the URI; titles are display-only.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// ChartData is the structured payload carried by a CHART_DATA directive.
type ChartData struct {
	Type   string    `json:"type"`
	Title  string    `json:"title"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Unit   string    `json:"unit,omitempty"`
}

// ValueAt returns the value for label index i, defaulting to 0 when the
// values slice is shorter than the labels slice.
func (c ChartData) ValueAt(i int) float64 {
	if i < 0 || i >= len(c.Values) {
		return 0
	}
	return c.Values[i]
}

// Message is one entry in a conversation. Content holds the raw text as
// received; for assistant messages the display form (directives stripped)
// is derived on read, never stored.
type Message struct {
	ID          string            `json:"id"`
	Role        Role              `json:"role"`
	Content     string            `json:"content"`
	CreatedAt   time.Time         `json:"createdAt"`
	IsStreaming bool              `json:"isStreaming,omitempty"`
	Hidden      bool              `json:"hidden,omitempty"`
	Sources     []GroundingSource `json:"sources,omitempty"`
}

// NewUserMessage builds a user message. User messages never stream and
// never carry sources.
func NewUserMessage(content string, hidden bool) Message {
	return Message{
		ID:        NewID(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Hidden:    hidden,
	}
}

// NewAssistantMessage builds an empty assistant message in streaming state.
func NewAssistantMessage() Message {
	return Message{
		ID:          NewID(),
		Role:        RoleAssistant,
		CreatedAt:   time.Now().UTC(),
		IsStreaming: true,
	}
}

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	TopicID   string    `json:"topicId,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Quota        int       `json:"quota"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Topic is a canned conversation starter shown on the home screen.
type Topic struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Prompt      string `json:"prompt"`
}

// StreamChunk is one increment of a streaming reply from the transport:
// a text delta plus any grounding sources attached to it.
type StreamChunk struct {
	Text    string
	Sources []GroundingSource
}

// Snapshot is the running view of an in-flight assistant reply published
// after each delta. RawText is what gets persisted as message content;
// DisplayText and the structured fields are derived from it.
type Snapshot struct {
	RawText     string            `json:"-"`
	DisplayText string            `json:"displayText"`
	Step        string            `json:"step,omitempty"`
	Chart       *ChartData        `json:"chart,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Options     []string          `json:"options,omitempty"`
	Sources     []GroundingSource `json:"sources,omitempty"`
	IsStreaming bool              `json:"isStreaming"`
}

const maxDerivedTitleRunes = 20

// TitleFromContent derives a conversation title from the first user
// message, truncated to a short display length.
func TitleFromContent(content string) string {
	text := strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
	if text == "" {
		return ""
	}
	runes := []rune(text)
	if len(runes) > maxDerivedTitleRunes {
		return string(runes[:maxDerivedTitleRunes])
	}
	return text
}
