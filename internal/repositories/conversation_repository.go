package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"birthday-chat-service/internal/apperrors"
	"birthday-chat-service/internal/models"
)

var ErrConversationNotFound = apperrors.NotFound("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindOrCreate(ctx context.Context, userID, friendID int64) (models.Conversation, error)
	Get(ctx context.Context, conversationID int64) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ListForUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error)
	ListIDsForUser(ctx context.Context, userID int64) ([]int64, error)
	Delete(ctx context.Context, conversationID int64) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, user1_id, user2_id, last_message_id, last_message_at, created_at`

// FindOrCreate returns the conversation for an unordered user pair, creating
// it if absent. Safe under concurrent calls from both sides: the normalized
// pair carries a unique constraint and the insert is ON CONFLICT DO NOTHING,
// so a creation race resolves to the existing row instead of an error.
func (r *ConversationRepo) FindOrCreate(ctx context.Context, userID, friendID int64) (models.Conversation, error) {
	if userID == friendID {
		return models.Conversation{}, apperrors.Validation("cannot start a conversation with yourself")
	}
	user1, user2 := userID, friendID
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (user1_id, user2_id) VALUES ($1, $2)
         ON CONFLICT (user1_id, user2_id) DO NOTHING`, user1, user2); err != nil {
		return models.Conversation{}, err
	}

	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE user1_id=$1 AND user2_id=$2`, user1, user2)
	return conv, err
}

// Get fetches a conversation by id.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int64) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	return conv, err
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`,
		conversationID, userID)
	return exists, err
}

// ListForUser returns the user's conversations annotated with the last
// message and the caller-specific unread count, most recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int64) ([]models.ConversationSummary, error) {
	query := `SELECT c.id, c.user1_id, c.user2_id, c.last_message_at, c.created_at,
            lm.id, lm.sender_id, lm.content, lm.edited, lm.edited_at, lm.created_at,
            COALESCE((SELECT array_agg(lr.user_id) FROM message_reads lr WHERE lr.message_id = c.last_message_id), '{}'),
            (SELECT COUNT(*) FROM messages m
                WHERE m.conversation_id = c.id AND m.sender_id <> $1
                AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $1)
            ) AS unread
        FROM conversations c
        LEFT JOIN messages lm ON lm.id = c.last_message_id
        WHERE c.user1_id=$1 OR c.user2_id=$1
        ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []models.ConversationSummary
	for rows.Next() {
		var (
			conv      models.Conversation
			lmID      sql.NullInt64
			lmSender  sql.NullInt64
			lmContent sql.NullString
			lmEdited  sql.NullBool
			lmEditdAt sql.NullTime
			lmCreated sql.NullTime
			lmReadBy  []int64
			unread    int
		)
		if err := rows.Scan(&conv.ID, &conv.User1ID, &conv.User2ID, &conv.LastMessageAt, &conv.CreatedAt,
			&lmID, &lmSender, &lmContent, &lmEdited, &lmEditdAt, &lmCreated, pq.Array(&lmReadBy), &unread); err != nil {
			return nil, err
		}

		summary := models.ConversationSummary{
			ConversationID: conv.ID,
			FriendID:       conv.OtherParticipant(userID),
			LastMessageAt:  conv.LastMessageAt,
			UnreadCount:    unread,
			CreatedAt:      conv.CreatedAt,
		}
		if lmID.Valid {
			last := models.Message{
				ID:             lmID.Int64,
				ConversationID: conv.ID,
				SenderID:       lmSender.Int64,
				Content:        lmContent.String,
				Edited:         lmEdited.Bool,
				CreatedAt:      lmCreated.Time,
				ReadBy:         lmReadBy,
			}
			if lmEditdAt.Valid {
				t := lmEditdAt.Time
				last.EditedAt = &t
			}
			summary.LastMessage = &last
		}
		result = append(result, summary)
	}
	return result, rows.Err()
}

// ListIDsForUser returns the ids of every conversation the user participates
// in, used for the subscribe-all handshake.
func (r *ConversationRepo) ListIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM conversations WHERE user1_id=$1 OR user2_id=$1`, userID)
	return ids, err
}

// Delete removes the conversation. Messages and read-receipts go with it via
// foreign-key cascade, so clients never observe a partially-deleted thread.
func (r *ConversationRepo) Delete(ctx context.Context, conversationID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=$1`, conversationID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
