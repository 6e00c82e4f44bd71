package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"chat-gateway/internal/models"
)

// FavoriteRepo is a sqlx implementation of FavoriteRepository.
type FavoriteRepo struct {
	db *sqlx.DB
}

// NewFavoriteRepo constructs a FavoriteRepo.
func NewFavoriteRepo(db *sqlx.DB) *FavoriteRepo {
	return &FavoriteRepo{db: db}
}

// AddFavorite marks roomID as favorite for userID.
func (r *FavoriteRepo) AddFavorite(ctx context.Context, userID, roomID int) (models.Favorite, error) {
	var fav models.Favorite
	err := r.db.QueryRowxContext(ctx, `INSERT INTO room_favorites (user_id, room_id) VALUES ($1, $2)
        RETURNING id, user_id, room_id`, userID, roomID).StructScan(&fav)
	switch pqCode(err) {
	case "":
	case pqUniqueViolation:
		return models.Favorite{}, ErrFavoriteExists
	case pqForeignKeyViolation:
		return models.Favorite{}, ErrRoomNotFound
	}
	return fav, err
}

// RemoveFavorite deletes the caller's own favorite for roomID.
func (r *FavoriteRepo) RemoveFavorite(ctx context.Context, userID, roomID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM room_favorites WHERE user_id=$1 AND room_id=$2`, userID, roomID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}
