package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// AuthorDirectory reads publish capability from the authors table.
type AuthorDirectory struct {
	db *sqlx.DB
}

func NewAuthorDirectory(db *sqlx.DB) *AuthorDirectory {
	return &AuthorDirectory{db: db}
}

func (a *AuthorDirectory) CanPublish(ctx context.Context, authorID int) (bool, error) {
	var canPublish bool
	err := a.db.GetContext(ctx, &canPublish, "SELECT can_publish FROM authors WHERE id = $1", authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get author %d: %w", authorID, err)
	}
	return canPublish, nil
}
