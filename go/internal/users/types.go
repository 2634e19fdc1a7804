package users

import "errors"

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already registered")
	ErrCacheMiss     = errors.New("cache miss")
)

// CreateUserRequest represents the data needed to register a new user
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is returned by a successful login
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	UserID      int64  `json:"user_id"`
}
