package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/hourbook/hourbook/libs/db"
)

var ErrEmailTaken = errors.New("email already registered")

// Repository is the actor directory. Account management beyond registration
// (profile updates, password rotation, avatars) lives outside this service.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindActor returns the actor and whether it exists.
func (r *Repository) FindActor(ctx context.Context, id string) (Actor, bool, error) {
	var a Actor
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, email, is_provider
		FROM actors
		WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.Email, &a.IsProvider)
	if errors.Is(err, pgx.ErrNoRows) {
		return Actor{}, false, nil
	}
	if err != nil {
		return Actor{}, false, err
	}
	return a, true, nil
}

// Create registers an actor. The email carries a unique constraint; a
// duplicate surfaces as ErrEmailTaken.
func (r *Repository) Create(ctx context.Context, name, email, password string, isProvider bool) (Actor, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Actor{}, err
	}

	a := Actor{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		Email:      strings.ToLower(strings.TrimSpace(email)),
		IsProvider: isProvider,
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO actors (id, name, email, password_hash, is_provider)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.Name, a.Email, string(hash), a.IsProvider)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Actor{}, ErrEmailTaken
		}
		return Actor{}, err
	}
	return a, nil
}
