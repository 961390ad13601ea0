package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"advisorai/internal/i18n"
	"advisorai/internal/util"
	"advisorai/pkg/ai"
	"advisorai/pkg/auth"
	"advisorai/pkg/domain"
	"advisorai/pkg/prefs"
	"advisorai/pkg/store"
	"advisorai/pkg/stream"
)

// SignupQuota is the number of advisor replies a new account starts with.
const SignupQuota = 20

const defaultHistoryLimit = 20

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Prefs       prefs.Store

	Generator       ai.Generator
	Provider        string
	GeminiAPIKey    string
	GenerationModel string
	OpenAIBaseURL   string
	OpenAIAPIKey    string

	JWTSecret  string
	SessionTTL time.Duration

	// HistoryLimit caps how many prior messages are replayed to the model.
	HistoryLimit int
}

// App is the core application service wiring together storage, auth,
// preferences, and the streaming advisor flow.
type App struct {
	store        store.Store
	prefs        prefs.Store
	generator    ai.Generator
	tokens       *auth.TokenIssuer
	historyLimit int
}

// New constructs the application. A database URL selects the Postgres
// store; without one all state lives in process memory.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			dataStore = store.NewMemoryStore()
		} else {
			var err error
			dataStore, err = store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("init postgres store: %w", err)
			}
		}
	}
	prefsStore := cfg.Prefs
	if prefsStore == nil {
		prefsStore = prefs.NewMemoryStore()
	}

	generator := cfg.Generator
	if generator == nil {
		provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
		if provider == "" {
			provider = "gemini"
		}
		var err error
		switch provider {
		case "gemini":
			generator, err = ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GenerationModel)
		case "openai-compat":
			generator, err = ai.NewOpenAICompatClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.GenerationModel)
		default:
			err = fmt.Errorf("unknown provider: %s", provider)
		}
		if err != nil {
			return nil, err
		}
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	return &App{
		store:        dataStore,
		prefs:        prefsStore,
		generator:    generator,
		tokens:       tokens,
		historyLimit: historyLimit,
	}, nil
}

// SignUp registers a new user with the signup quota and issues a session token.
func (a *App) SignUp(email, username, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           domain.NewID(),
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		Quota:        SignupQuota,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Login validates credentials and issues a session token.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.Issue(user.ID)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// VerifyToken resolves a session token to its user.
func (a *App) VerifyToken(token string) (domain.User, error) {
	userID, err := a.tokens.VerifySubject(token)
	if err != nil {
		return domain.User{}, err
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, auth.ErrInvalidToken
	}
	return user, nil
}

// Topics returns the canned topic catalog for a language.
func (a *App) Topics(lang domain.Language) []domain.Topic {
	return i18n.Topics(lang)
}

// Preferences loads the saved preferences for a user.
func (a *App) Preferences(ctx context.Context, userID string) (prefs.Preferences, error) {
	return a.prefs.Load(ctx, userID)
}

// SavePreferences persists user preferences.
func (a *App) SavePreferences(ctx context.Context, userID string, p prefs.Preferences) error {
	return a.prefs.Save(ctx, userID, p)
}

// ConversationBuckets lists the user's conversations newest first, grouped
// by recency relative to now.
func (a *App) ConversationBuckets(userID string, now time.Time) (store.Buckets, error) {
	convs, err := a.store.ListConversationsByUser(userID)
	if err != nil {
		return store.Buckets{}, fmt.Errorf("list conversations: %w", err)
	}
	return store.GroupByRecency(convs, now), nil
}

// GetConversation returns a conversation with its messages, enforcing ownership.
func (a *App) GetConversation(userID, conversationID string) (domain.Conversation, error) {
	conv, ok, err := a.store.GetConversation(conversationID)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	if !ok {
		return domain.Conversation{}, ErrConversationNotFound
	}
	if conv.UserID != userID {
		return domain.Conversation{}, ErrConversationForbidden
	}
	return conv, nil
}

// DeleteConversation removes a conversation, enforcing ownership.
func (a *App) DeleteConversation(userID, conversationID string) error {
	if _, err := a.GetConversation(userID, conversationID); err != nil {
		return err
	}
	if err := a.store.DeleteConversation(conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// SendMessage appends a user message and streams the advisor reply,
// publishing a snapshot to observer after each delta. It returns once the
// reply has completed or failed. An empty conversationID starts a new
// conversation.
func (a *App) SendMessage(ctx context.Context, user domain.User, conversationID, content string, lang domain.Language, observer func(domain.Snapshot)) (domain.Conversation, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Conversation{}, ErrMessageRequired
	}
	if user.Quota <= 0 {
		return domain.Conversation{}, ErrQuotaExhausted
	}

	conv, err := a.ensureConversation(user, conversationID, "", lang)
	if err != nil {
		return domain.Conversation{}, err
	}
	if _, err := a.store.AppendUserMessage(conv.ID, content, false); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Conversation{}, ErrConversationNotFound
		}
		return domain.Conversation{}, fmt.Errorf("save user message: %w", err)
	}
	if err := a.runTurn(ctx, user, conv.ID, lang, observer); err != nil {
		return domain.Conversation{}, err
	}
	// Re-read so the caller sees the derived title and updated timestamp.
	// A conversation deleted mid-turn keeps the pre-turn view.
	if fresh, err := a.GetConversation(user.ID, conv.ID); err == nil {
		conv = fresh
	}
	return conv, nil
}

// SelectTopic starts a conversation from a canned topic. The topic prompt
// is recorded as a hidden user message so it reaches the model without
// showing up in the transcript.
func (a *App) SelectTopic(ctx context.Context, user domain.User, topicID string, lang domain.Language, observer func(domain.Snapshot)) (domain.Conversation, error) {
	topic, ok := i18n.TopicByID(topicID, lang)
	if !ok {
		return domain.Conversation{}, ErrTopicNotFound
	}
	if user.Quota <= 0 {
		return domain.Conversation{}, ErrQuotaExhausted
	}

	conv, err := a.ensureConversation(user, "", topic.ID, lang)
	if err != nil {
		return domain.Conversation{}, err
	}
	if _, err := a.store.AppendUserMessage(conv.ID, topic.Prompt, true); err != nil {
		return domain.Conversation{}, fmt.Errorf("save topic prompt: %w", err)
	}
	if err := a.runTurn(ctx, user, conv.ID, lang, observer); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (a *App) ensureConversation(user domain.User, conversationID, topicID string, lang domain.Language) (domain.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID != "" {
		return a.GetConversation(user.ID, conversationID)
	}
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:        domain.NewID(),
		UserID:    user.ID,
		Title:     i18n.DefaultTitle(lang),
		TopicID:   topicID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if topicID != "" {
		if topic, ok := i18n.TopicByID(topicID, lang); ok {
			conv.Title = topic.Title
		}
	}
	if err := a.store.CreateConversation(conv); err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// runTurn drives one streaming reply: it claims the conversation's
// streaming slot, replays history to the model, persists a snapshot after
// every delta, and settles the message as completed or failed. Quota is
// consumed only when the reply completes.
func (a *App) runTurn(ctx context.Context, user domain.User, conversationID string, lang domain.Language, observer func(domain.Snapshot)) error {
	logger := util.LoggerFromContext(ctx)

	reply, err := a.store.BeginAssistantReply(conversationID)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyStreaming) {
			return ErrTurnInFlight
		}
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("begin reply: %w", err)
	}

	agg := stream.New(func(snap domain.Snapshot) {
		// Persist-then-publish keeps reads consistent with what the
		// client has seen. Both are no-ops once the target vanishes.
		if err := a.store.ApplyStreamSnapshot(conversationID, reply.ID, snap); err != nil {
			logger.Warn("apply snapshot", "error", err)
		}
		if observer != nil {
			observer(snap)
		}
	})

	// The streaming slot is claimed, so every exit below must settle the
	// reply; an unsettled message blocks the conversation forever.
	turns, err := a.historyTurns(conversationID, reply.ID)
	if err != nil {
		logger.Error("load history", "error", err, "conversation_id", conversationID)
		agg.Fail(i18n.Apology(lang))
		return nil
	}

	replyStream, err := a.generator.StreamReply(ctx, i18n.SystemInstruction(lang), turns)
	if err != nil {
		logger.Error("open reply stream", "error", err, "conversation_id", conversationID)
		agg.Fail(i18n.Apology(lang))
		return nil
	}
	defer replyStream.Close()

	for {
		chunk, err := replyStream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Error("reply stream", "error", err, "conversation_id", conversationID)
			agg.Fail(i18n.Apology(lang))
			return nil
		}
		if err := agg.Apply(chunk); err != nil {
			return fmt.Errorf("apply chunk: %w", err)
		}
	}

	if _, err := agg.Complete(); err != nil {
		return fmt.Errorf("complete reply: %w", err)
	}
	if err := a.store.TouchConversation(conversationID, time.Now().UTC()); err != nil {
		logger.Warn("touch conversation", "error", err)
	}
	a.consumeQuota(logger, user)
	return nil
}

func (a *App) historyTurns(conversationID, replyID string) ([]ai.Turn, error) {
	messages, err := a.store.ListMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	turns := make([]ai.Turn, 0, len(messages))
	for _, msg := range messages {
		if msg.ID == replyID || msg.Content == "" {
			continue
		}
		role := ai.RoleUser
		if msg.Role == domain.RoleAssistant {
			role = ai.RoleModel
		}
		turns = append(turns, ai.Turn{Role: role, Text: msg.Content})
	}
	if len(turns) > a.historyLimit {
		turns = turns[len(turns)-a.historyLimit:]
	}
	return turns, nil
}

// consumeQuota charges one reply, never going below zero. A failed save
// leaves the quota uncharged rather than failing the completed reply.
func (a *App) consumeQuota(logger *slog.Logger, user domain.User) {
	fresh, ok, err := a.store.GetUserByID(user.ID)
	if err != nil || !ok {
		logger.Warn("load user for quota", "error", err)
		return
	}
	fresh.Quota = max(0, fresh.Quota-1)
	fresh.UpdatedAt = time.Now().UTC()
	if err := a.store.SaveUser(fresh); err != nil {
		logger.Warn("save quota", "error", err)
	}
}
