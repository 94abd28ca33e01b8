package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rtc-service/internal/models"
)

var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotAuthor         = errors.New("not the message author")
	ErrDuplicateReaction = errors.New("reaction already exists")
	ErrReactionNotFound  = errors.New("reaction not found")
)

const messageColumns = `id, channel_id, author_id, content, reply_to, reply_count, edited, deleted, created_at, updated_at`

// MessageRepository is the contract against the message store.
type MessageRepository interface {
	Create(ctx context.Context, channelID, authorID, content string, replyTo *string) (models.Message, error)
	Get(ctx context.Context, messageID string) (models.Message, error)
	Edit(ctx context.Context, messageID, authorID, content string) (models.Message, error)
	SoftDelete(ctx context.Context, messageID, authorID string) (models.Message, error)
	AddReaction(ctx context.Context, messageID, userID, emoji string) error
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error
	ListChannelMessages(ctx context.Context, channelID string, before, after *time.Time, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message and, for replies, bumps the parent's reply counter
// in the same transaction.
func (r *MessageRepo) Create(ctx context.Context, channelID, authorID, content string, replyTo *string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	if replyTo != nil {
		res, err := tx.ExecContext(ctx, `UPDATE messages SET reply_count = reply_count + 1 WHERE id=$1`, *replyTo)
		if err != nil {
			return models.Message{}, err
		}
		count, err := res.RowsAffected()
		if err != nil {
			return models.Message{}, err
		}
		if count == 0 {
			return models.Message{}, ErrMessageNotFound
		}
	}

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (id, channel_id, author_id, content, reply_to) VALUES ($1, $2, $3, $4, $5) RETURNING `+messageColumns,
		uuid.NewString(), channelID, authorID, content, replyTo).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Edit updates content when the caller authored the message.
func (r *MessageRepo) Edit(ctx context.Context, messageID, authorID, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$3, edited=TRUE, updated_at=NOW()
         WHERE id=$1 AND author_id=$2 AND deleted=FALSE
         RETURNING `+messageColumns,
		messageID, authorID, content).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, r.ownershipError(ctx, messageID)
	}
	return msg, err
}

// SoftDelete flags the message deleted and replaces its content with the
// tombstone. The row stays so reply threads keep their parent.
func (r *MessageRepo) SoftDelete(ctx context.Context, messageID, authorID string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET deleted=TRUE, content=$3, updated_at=NOW()
         WHERE id=$1 AND author_id=$2 AND deleted=FALSE
         RETURNING `+messageColumns,
		messageID, authorID, models.Tombstone).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, r.ownershipError(ctx, messageID)
	}
	return msg, err
}

// AddReaction inserts a reaction; a repeat of the same (user, emoji) pair is
// a uniqueness violation surfaced as ErrDuplicateReaction.
func (r *MessageRepo) AddReaction(ctx context.Context, messageID, userID, emoji string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO reactions (message_id, user_id, emoji) VALUES ($1, $2, $3)`, messageID, userID, emoji)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return ErrDuplicateReaction
		case "23503":
			return ErrMessageNotFound
		}
	}
	return err
}

// RemoveReaction deletes a reaction the user previously placed.
func (r *MessageRepo) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reactions WHERE message_id=$1 AND user_id=$2 AND emoji=$3`, messageID, userID, emoji)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrReactionNotFound
	}
	return nil
}

// ListChannelMessages returns channel history by created-at cursor.
func (r *MessageRepo) ListChannelMessages(ctx context.Context, channelID string, before, after *time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel_id=$1`
	args := []interface{}{channelID}
	if before != nil {
		args = append(args, *before)
		query += ` AND created_at < $2`
	}
	if after != nil {
		args = append(args, *after)
		if before != nil {
			query += ` AND created_at > $3`
		} else {
			query += ` AND created_at > $2`
		}
	}
	args = append(args, limit)
	switch len(args) {
	case 2:
		query += ` ORDER BY created_at DESC LIMIT $2`
	case 3:
		query += ` ORDER BY created_at DESC LIMIT $3`
	default:
		query += ` ORDER BY created_at DESC LIMIT $4`
	}

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// ownershipError distinguishes a missing message from an ownership
// violation after a guarded UPDATE matched no rows.
func (r *MessageRepo) ownershipError(ctx context.Context, messageID string) error {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM messages WHERE id=$1 AND deleted=FALSE)`, messageID); err != nil {
		return err
	}
	if exists {
		return ErrNotAuthor
	}
	return ErrMessageNotFound
}
