package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/focushub/go/internal/accountrpc"
	"github.com/mcdev12/focushub/go/internal/auth"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/rs/zerolog/log"
)

// UsersRepository defines what the app layer needs from the repository
type UsersRepository interface {
	CreateUser(ctx context.Context, username, hashedPassword string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListTopUsers(ctx context.Context, limit int) ([]models.LeaderboardEntry, error)
}

// LeaderboardCache stores the computed leaderboard between claims
type LeaderboardCache interface {
	Get(ctx context.Context) ([]models.LeaderboardEntry, error)
	Set(ctx context.Context, entries []models.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

// App handles users business logic
type App struct {
	repo   UsersRepository
	issuer *auth.Issuer
	cache  LeaderboardCache
}

// NewApp creates a new users App. cache may be nil.
func NewApp(repo UsersRepository, issuer *auth.Issuer, cache LeaderboardCache) *App {
	return &App{
		repo:   repo,
		issuer: issuer,
		cache:  cache,
	}
}

// Register creates a new user with a bcrypt hashed password
func (a *App) Register(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := a.validateCreateUserRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	existing, err := a.repo.GetUserByUsername(ctx, req.Username)
	if err == nil && existing != nil {
		return nil, ErrUsernameTaken
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := a.repo.CreateUser(ctx, req.Username, hashed)
	if err != nil {
		return nil, err
	}

	log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("registered user")
	return user, nil
}

// Login checks credentials and issues an access token
func (a *App) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := a.repo.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(user.HashedPassword, password); err != nil {
		return nil, err
	}

	token, err := a.issuer.Issue(auth.Identity{UserID: user.ID, Username: user.Username})
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		Username:    user.Username,
		UserID:      user.ID,
	}, nil
}

// GetUser retrieves a user by ID
func (a *App) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return a.repo.GetUser(ctx, id)
}

// Leaderboard returns the top users by flowers, served from the cache when
// it holds a copy
func (a *App) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	if a.cache != nil {
		entries, err := a.cache.Get(ctx)
		if err == nil {
			return entries, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Msg("leaderboard cache read failed")
		}
	}

	entries, err := a.repo.ListTopUsers(ctx, accountrpc.LeaderboardSize)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, entries); err != nil {
			log.Warn().Err(err).Msg("leaderboard cache write failed")
		}
	}
	return entries, nil
}

// FlowersChanged drops the cached leaderboard after a reward was granted
func (a *App) FlowersChanged(ctx context.Context, userID int64) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("leaderboard cache invalidation failed")
	}
}

func (a *App) validateCreateUserRequest(req CreateUserRequest) error {
	if req.Username == "" {
		return fmt.Errorf("username is required")
	}
	if req.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}
