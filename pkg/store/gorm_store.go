package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"advisorai/pkg/domain"
)

const migrateLockID int64 = 48120731

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock
// so concurrent replicas do not race on schema changes.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &ConversationModel{}, &MessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_conversation_id_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_conversation_id_fkey
					FOREIGN KEY (conversation_id) REFERENCES conversation_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure message foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "username", "password_hash", "quota", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateConversation creates the conversation record and any seed messages.
func (s *GormStore) CreateConversation(conv domain.Conversation) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := conversationToModel(conv)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, msg := range conv.Messages {
			msgModel := messageToModel(msg)
			msgModel.ConversationID = conv.ID
			if err := tx.Create(&msgModel).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation returns one conversation with its messages.
func (s *GormStore) GetConversation(id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	conv := conversationFromModel(model)
	msgs, err := s.ListMessages(id)
	if err != nil {
		return domain.Conversation{}, false, err
	}
	conv.Messages = msgs
	return conv, true, nil
}

// ListConversationsByUser returns conversations newest first, without
// message bodies.
func (s *GormStore) ListConversationsByUser(userID string) ([]domain.Conversation, error) {
	var models []ConversationModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.Conversation, 0, len(models))
	for _, model := range models {
		items = append(items, conversationFromModel(model))
	}
	return items, nil
}

// DeleteConversation removes the conversation (messages cascade).
func (s *GormStore) DeleteConversation(id string) error {
	res := s.db.Delete(&ConversationModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchConversation refreshes the recency timestamp; a vanished target is
// a no-op.
func (s *GormStore) TouchConversation(id string, at time.Time) error {
	return s.db.Model(&ConversationModel{}).
		Where("id = ?", id).
		Update("updated_at", at.UTC()).Error
}

// AppendUserMessage records a user message; the first visible message also
// sets the conversation title.
func (s *GormStore) AppendUserMessage(conversationID, content string, hidden bool) (domain.Message, error) {
	msg := domain.NewUserMessage(content, hidden)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var conv ConversationModel
		if err := tx.First(&conv, "id = ?", conversationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}
		var count int64
		if err := tx.Model(&MessageModel{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 && !hidden {
			if title := domain.TitleFromContent(content); title != "" {
				if err := tx.Model(&ConversationModel{}).Where("id = ?", conversationID).
					Update("title", title).Error; err != nil {
					return err
				}
			}
		}
		model := messageToModel(msg)
		model.ConversationID = conversationID
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// BeginAssistantReply appends an empty streaming assistant message,
// enforcing at most one streaming message per conversation.
func (s *GormStore) BeginAssistantReply(conversationID string) (domain.Message, error) {
	msg := domain.NewAssistantMessage()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var conv ConversationModel
		if err := tx.First(&conv, "id = ?", conversationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return err
		}
		var streaming int64
		if err := tx.Model(&MessageModel{}).
			Where("conversation_id = ? AND is_streaming", conversationID).
			Count(&streaming).Error; err != nil {
			return err
		}
		if streaming > 0 {
			return ErrAlreadyStreaming
		}
		model := messageToModel(msg)
		model.ConversationID = conversationID
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ApplyStreamSnapshot replaces the mutable fields of the streaming message.
// A vanished conversation or message is a no-op.
func (s *GormStore) ApplyStreamSnapshot(conversationID, messageID string, snap domain.Snapshot) error {
	rawSources, _ := json.Marshal(snap.Sources)
	return s.db.Model(&MessageModel{}).
		Where("id = ? AND conversation_id = ?", messageID, conversationID).
		Updates(map[string]any{
			"content":      snap.RawText,
			"sources":      rawSources,
			"is_streaming": snap.IsStreaming,
		}).Error
}

// ListMessages returns the messages of a conversation in chronological order.
func (s *GormStore) ListMessages(conversationID string) ([]domain.Message, error) {
	var conv ConversationModel
	if err := s.db.First(&conv, "id = ?", conversationID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var models []MessageModel
	if err := s.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.Message, 0, len(models))
	for _, model := range models {
		msgs = append(msgs, messageFromModel(model))
	}
	return msgs, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Quota:        u.Quota,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Quota:        m.Quota,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func conversationToModel(c domain.Conversation) ConversationModel {
	return ConversationModel{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		TopicID:   c.TopicID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	return domain.Conversation{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		TopicID:   m.TopicID,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	rawSources, _ := json.Marshal(msg.Sources)
	return MessageModel{
		ID:          msg.ID,
		Role:        string(msg.Role),
		Content:     msg.Content,
		Hidden:      msg.Hidden,
		IsStreaming: msg.IsStreaming,
		Sources:     rawSources,
		CreatedAt:   msg.CreatedAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	var sources []domain.GroundingSource
	if len(m.Sources) > 0 {
		_ = json.Unmarshal(m.Sources, &sources)
	}
	return domain.Message{
		ID:          m.ID,
		Role:        domain.Role(m.Role),
		Content:     m.Content,
		Hidden:      m.Hidden,
		IsStreaming: m.IsStreaming,
		Sources:     sources,
		CreatedAt:   m.CreatedAt,
	}
}
