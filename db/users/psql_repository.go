package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stays/entity"
)

type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) PostgresRepository {
	if db == nil {
		panic("db is nil")
	}

	return PostgresRepository{db: db}
}

func (r PostgresRepository) Store(ctx context.Context, user entity.User) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO
			users (user_id, email)
		VALUES
			(:user_id, :email)
		ON CONFLICT (user_id) DO UPDATE SET email = excluded.email
		`, user)
	if err != nil {
		return fmt.Errorf("could not store user: %w", err)
	}

	return nil
}

func (r PostgresRepository) Get(ctx context.Context, userID string) (entity.User, error) {
	var user entity.User
	err := r.db.GetContext(ctx, &user, `SELECT user_id, email FROM users WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.User{}, entity.ErrNotFound
	} else if err != nil {
		return entity.User{}, fmt.Errorf("could not get user: %w", err)
	}

	return user, nil
}
