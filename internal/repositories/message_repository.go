package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"birthday-chat-service/internal/apperrors"
	"birthday-chat-service/internal/models"
)

var ErrMessageNotFound = apperrors.NotFound("message not found")

// MessageRepository is the append-only message log with read-receipts.
type MessageRepository interface {
	Create(ctx context.Context, conversationID, senderID int64, content string) (models.Message, error)
	Get(ctx context.Context, messageID int64) (models.Message, error)
	Edit(ctx context.Context, messageID, userID int64, content string) (models.Message, error)
	Delete(ctx context.Context, messageID int64) error
	MarkRead(ctx context.Context, conversationID, userID int64) (int, error)
	ListForConversation(ctx context.Context, conversationID int64, limit int, before int64) ([]models.Message, error)
	ListUnreadSince(ctx context.Context, conversationID, userID int64, since time.Time) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create appends a message. The author gets an implicit read-receipt and the
// conversation's last-message pointer advances, all in one transaction.
// Callers must have verified content and participation; the conversation
// lookup here fails closed with NotFound.
func (r *MessageRepo) Create(ctx context.Context, conversationID, senderID int64, content string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	err = tx.GetContext(ctx, &conv,
		`SELECT `+conversationColumns+` FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	if !conv.HasParticipant(senderID) {
		// Non-participants learn nothing about the conversation.
		return models.Message{}, ErrConversationNotFound
	}

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content)
         VALUES ($1, $2, $3)
         RETURNING id, conversation_id, sender_id, content, edited, edited_at, created_at`,
		conversationID, senderID, content).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Edited, &msg.EditedAt, &msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id) VALUES ($1, $2)`, msg.ID, senderID); err != nil {
		return models.Message{}, err
	}

	// Guarded so concurrent sends cannot move the pointer backwards when
	// their transactions commit out of creation order.
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_id=$1, last_message_at=$2
         WHERE id=$3 AND (last_message_at IS NULL OR last_message_at <= $2)`,
		msg.ID, msg.CreatedAt, conversationID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}

	msg.ReadBy = []int64{senderID}
	return msg, nil
}

// Get retrieves a single message with its read-receipt set.
func (r *MessageRepo) Get(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.edited, m.edited_at, m.created_at,
            COALESCE(array_agg(r.user_id) FILTER (WHERE r.user_id IS NOT NULL), '{}')
        FROM messages m
        LEFT JOIN message_reads r ON r.message_id = m.id
        WHERE m.id=$1
        GROUP BY m.id`, messageID).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Edited, &msg.EditedAt,
			&msg.CreatedAt, pq.Array(&msg.ReadBy))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Edit rewrites the content of a message. The author and edit-window checks
// belong to the caller; they are repeated in the statement guard so a racing
// delete or expiry yields zero rows and maps to NotFound.
func (r *MessageRepo) Edit(ctx context.Context, messageID, userID int64, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`UPDATE messages SET content=$3, edited=TRUE, edited_at=NOW()
         WHERE id=$1 AND sender_id=$2 AND created_at >= NOW() - ($4 * INTERVAL '1 second')
         RETURNING id, conversation_id, sender_id, content, edited, edited_at, created_at`,
		messageID, userID, content, int(models.EditWindow.Seconds())).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Edited, &msg.EditedAt, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// Delete removes a message and repoints the conversation's last-message
// denormalization at the most recent survivor, or clears it.
func (r *MessageRepo) Delete(ctx context.Context, messageID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var conversationID int64
	err = tx.GetContext(ctx, &conversationID,
		`DELETE FROM messages WHERE id=$1 RETURNING conversation_id`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrMessageNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET
            last_message_id = (SELECT id FROM messages WHERE conversation_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1),
            last_message_at = (SELECT created_at FROM messages WHERE conversation_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1)
        WHERE id=$1`, conversationID); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkRead stamps a read-receipt on every message in the conversation that
// someone else authored and the user has not seen. Idempotent: re-marking is
// a no-op and the returned count is the number of newly-marked messages.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID, userID int64) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_reads (message_id, user_id)
         SELECT m.id, $2 FROM messages m
         WHERE m.conversation_id=$1 AND m.sender_id <> $2
         ON CONFLICT (message_id, user_id) DO NOTHING`, conversationID, userID)
	if err != nil {
		return 0, err
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// ListForConversation returns messages in append order, paginated backwards
// from the `before` message id (0 means latest page).
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int64, limit int, before int64) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.edited, m.edited_at, m.created_at,
            COALESCE(array_agg(r.user_id) FILTER (WHERE r.user_id IS NOT NULL), '{}')
        FROM messages m
        LEFT JOIN message_reads r ON r.message_id = m.id
        WHERE m.conversation_id=$1 AND ($2 = 0 OR m.id < $2)
        GROUP BY m.id
        ORDER BY m.id DESC
        LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// Flip to append order for the client.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListUnreadSince is the read-only query behind the offline digest mails.
func (r *MessageRepo) ListUnreadSince(ctx context.Context, conversationID, userID int64, since time.Time) ([]models.Message, error) {
	query := `SELECT m.id, m.conversation_id, m.sender_id, m.content, m.edited, m.edited_at, m.created_at,
            COALESCE(array_agg(r.user_id) FILTER (WHERE r.user_id IS NOT NULL), '{}')
        FROM messages m
        LEFT JOIN message_reads r ON r.message_id = m.id
        WHERE m.conversation_id=$1 AND m.sender_id <> $2 AND m.created_at > $3
        AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.user_id = $2)
        GROUP BY m.id
        ORDER BY m.id ASC`

	rows, err := r.db.QueryxContext(ctx, query, conversationID, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sqlx.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.Edited,
			&msg.EditedAt, &msg.CreatedAt, pq.Array(&msg.ReadBy)); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
