package user

import (
	"context"
	"database/sql"
	"errors"

	"pollchat/internal/apperr"
	"pollchat/internal/db"
)

type Repository struct {
	db *db.Database
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database}
}

func (r *Repository) CreateUser(ctx context.Context, user *User) (*User, error) {
	if existing, err := r.FindUserByUsername(ctx, user.Username); err == nil && existing != nil {
		return nil, apperr.ErrDuplicateUser
	} else if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	var id int
	query := r.db.Rebind("INSERT INTO users (username, password, external_uid) VALUES (?, ?, ?) RETURNING id")

	err := r.db.Conn.QueryRowContext(ctx, query, user.Username, user.Password, user.ExternalUID).Scan(&id)
	if err != nil {
		// lost a race with a concurrent registration
		if db.IsUniqueViolation(err) {
			return nil, apperr.ErrDuplicateUser
		}
		return nil, apperr.Store("create user", err)
	}

	user.ID = id
	return user, nil
}

func (r *Repository) FindUser(ctx context.Context, id int) (*User, error) {
	query := r.db.Rebind("SELECT id, username, password, external_uid FROM users WHERE id = ?")
	return r.scanOne(ctx, "find user", query, id)
}

func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*User, error) {
	query := r.db.Rebind("SELECT id, username, password, external_uid FROM users WHERE username = ?")
	return r.scanOne(ctx, "find user by username", query, username)
}

func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.Conn.QueryContext(ctx, "SELECT id, username, external_uid FROM users ORDER BY id")
	if err != nil {
		return nil, apperr.Store("list users", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.ExternalUID); err != nil {
			return nil, apperr.Store("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("list users", err)
	}
	return users, nil
}

func (r *Repository) scanOne(ctx context.Context, op, query string, arg any) (*User, error) {
	u := &User{}
	err := r.db.Conn.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Password, &u.ExternalUID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Store(op, err)
	}
	return u, nil
}
