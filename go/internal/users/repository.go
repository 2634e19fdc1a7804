package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/users/db"
)

// uniqueViolation is the Postgres error code for a unique constraint failure
const uniqueViolation = "23505"

// Querier defines what the repository needs from the database layer
type Querier interface {
	CreateUser(ctx context.Context, arg db.CreateUserParams) (db.User, error)
	GetUser(ctx context.Context, id int64) (db.User, error)
	GetUserByUsername(ctx context.Context, username string) (db.User, error)
	ListTopUsers(ctx context.Context, limit int32) ([]db.ListTopUsersRow, error)
}

// Repository implements user data access operations
type Repository struct {
	queries Querier
}

// NewRepository creates a new users repository
func NewRepository(querier Querier) *Repository {
	return &Repository{
		queries: querier,
	}
}

// CreateUser inserts a user with an already hashed password
func (r *Repository) CreateUser(ctx context.Context, username, hashedPassword string) (*models.User, error) {
	user, err := r.queries.CreateUser(ctx, db.CreateUserParams{
		Username:       username,
		HashedPassword: hashedPassword,
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return r.dbUserToModel(user), nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := r.queries.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return r.dbUserToModel(user), nil
}

// GetUserByUsername retrieves a user by username
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := r.queries.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}

	return r.dbUserToModel(user), nil
}

// ListTopUsers returns the users with the most flowers
func (r *Repository) ListTopUsers(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	rows, err := r.queries.ListTopUsers(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list top users: %w", err)
	}

	entries := make([]models.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.LeaderboardEntry{
			Username: row.Username,
			Flowers:  int(row.FlowersGrown),
		})
	}
	return entries, nil
}

// dbUserToModel converts a database user to domain model
func (r *Repository) dbUserToModel(dbUser db.User) *models.User {
	return &models.User{
		ID:             dbUser.ID,
		Username:       dbUser.Username,
		HashedPassword: dbUser.HashedPassword,
		FlowersGrown:   int(dbUser.FlowersGrown),
		CreatedAt:      dbUser.CreatedAt,
	}
}
