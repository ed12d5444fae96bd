package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"birthday-chat-service/internal/models"
)

// FriendshipRepository is a read-only view of the friendship edges owned by
// the friend-management service. The chat core only consults it to authorize
// conversation creation.
type FriendshipRepository interface {
	AreFriends(ctx context.Context, userID, friendID int64) (bool, error)
}

// FriendshipRepo is a sqlx implementation of FriendshipRepository.
type FriendshipRepo struct {
	db *sqlx.DB
}

// NewFriendshipRepo constructs a FriendshipRepo.
func NewFriendshipRepo(db *sqlx.DB) *FriendshipRepo {
	return &FriendshipRepo{db: db}
}

// AreFriends reports whether an accepted edge exists in either direction.
func (r *FriendshipRepo) AreFriends(ctx context.Context, userID, friendID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(
            SELECT 1 FROM friendships
            WHERE status = $3
            AND ((requester_id=$1 AND addressee_id=$2) OR (requester_id=$2 AND addressee_id=$1))
        )`, userID, friendID, models.FriendshipAccepted)
	return exists, err
}
