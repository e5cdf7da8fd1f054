package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("identity not found")

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, a *account) error {
	query := "INSERT INTO users (username, email, password) VALUES ($1, $2, $3) RETURNING id"
	return r.db.QueryRowContext(ctx, query, a.Username, a.Email, a.Password).Scan(&a.ID)
}

// FindByID returns the identity without its password hash.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	u := &Identity{}
	query := "SELECT id, username, email FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Username, &u.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *Repository) findByUsername(ctx context.Context, username string) (*account, error) {
	a := &account{}
	query := "SELECT id, username, email, password FROM users WHERE username = $1"

	err := r.db.QueryRowContext(ctx, query, username).Scan(&a.ID, &a.Username, &a.Email, &a.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}
