package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/barotovamirbek/elowy-chat/internal/models"
)

type UserRepository struct {
	DB *sqlx.DB
}

func (r *UserRepository) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	query := `
		INSERT INTO users (name, username, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	err := r.DB.QueryRowxContext(ctx, query, user.Name, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicate
		}
		return nil, errors.Wrap(err, "insert user")
	}
	return &user, nil
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, name, username, email, password_hash, is_system, created_at FROM users WHERE username = $1`, username)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	return r.getUser(ctx, `SELECT id, name, username, email, password_hash, is_system, created_at FROM users WHERE id = $1`, id)
}

func (r *UserRepository) getUser(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := r.DB.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "select user")
	}
	return &user, nil
}

// EnsureSystemUser makes id a reserved, non-loginable account and moves the
// id sequence past it so registration never hands it out. It fails with
// ErrReserved when id already belongs to a regular user.
func (r *UserRepository) EnsureSystemUser(ctx context.Context, id int, name string) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback() //nolint:errcheck

	var isSystem bool
	err = tx.GetContext(ctx, &isSystem, `SELECT is_system FROM users WHERE id = $1 FOR UPDATE`, id)
	switch {
	case err == nil && !isSystem:
		return errors.Wrapf(ErrReserved, "user %d", id)
	case err == nil:
		// already reserved
	case errors.Is(err, sql.ErrNoRows):
		username := fmt.Sprintf("system-%d", id)
		// "!" is not a bcrypt hash, so no password ever matches
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, name, username, email, password_hash, is_system)
			VALUES ($1, $2, $3, $4, '!', TRUE)`,
			id, name, username, username+"@elowy.invalid"); err != nil {
			return errors.Wrap(err, "insert system user")
		}
	default:
		return errors.Wrap(err, "select system user")
	}

	if _, err := tx.ExecContext(ctx, `
		SELECT setval('users_id_seq', GREATEST((SELECT MAX(id) FROM users), (SELECT last_value FROM users_id_seq)))`); err != nil {
		return errors.Wrap(err, "advance user id sequence")
	}
	return errors.Wrap(tx.Commit(), "commit")
}
