package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/focushub/go/internal/accountrpc"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"
)

// genericDenial is surfaced when a rejection payload cannot be read
const genericDenial = "Verification failed"

// TokenProvider supplies the bearer token for authenticated calls
type TokenProvider interface {
	Token() (string, error)
}

// AccountClient talks to the account service over HTTP and Connect
type AccountClient struct {
	*BaseClient
	tokens TokenProvider

	stats       *connect.Client[structpb.Struct, structpb.Struct]
	leaderboard *connect.Client[structpb.Struct, structpb.Struct]
}

func NewAccountClient(baseURL string, tokens TokenProvider) *AccountClient {
	base := NewBaseClient(strings.TrimSuffix(baseURL, "/"))
	return &AccountClient{
		BaseClient: base,
		tokens:     tokens,
		stats: connect.NewClient[structpb.Struct, structpb.Struct](
			base.HTTPClient(),
			base.BaseURL()+accountrpc.GetUserStatsProcedure,
		),
		leaderboard: connect.NewClient[structpb.Struct, structpb.Struct](
			base.HTTPClient(),
			base.BaseURL()+accountrpc.GetLeaderboardProcedure,
		),
	}
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
	UserID      int64  `json:"user_id"`
}

type claimResponse struct {
	Status  string `json:"status"`
	Flowers int    `json:"flowers"`
}

func formHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
}

func credentialsForm(username, password string) *strings.Reader {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	return strings.NewReader(form.Encode())
}

func (c *AccountClient) authHeaders() (map[string]string, error) {
	if c.tokens == nil {
		return nil, errors.New("no token provider configured")
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// Register creates an account
func (c *AccountClient) Register(ctx context.Context, username, password string) error {
	if _, err := c.Post(ctx, "/register", credentialsForm(username, password), formHeaders()); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	return nil
}

// Login exchanges credentials for a bearer token
func (c *AccountClient) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body, err := c.Post(ctx, "/token", credentialsForm(username, password), formHeaders())
	if err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	var response LoginResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return &response, nil
}

// Claim asks the account service to verify a completed session and grant its
// reward. It returns the new flower total, a *models.VerificationDeniedError
// on a 403, or an opaque error for anything else.
func (c *AccountClient) Claim(ctx context.Context, userID int64, roomID string) (int, error) {
	headers, err := c.authHeaders()
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("/user/%d/claim-reward?room_id=%s", userID, url.QueryEscape(roomID))
	body, err := c.Post(ctx, endpoint, nil, headers)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
			return 0, ParseDenial(apiErr.Body)
		}
		return 0, fmt.Errorf("failed to claim reward: %w", err)
	}

	var response claimResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return response.Flowers, nil
}

// ParseDenial reads a 403 claim body of the form {"detail": "<json>"}. Any
// payload that does not carry a readable breakdown yields a generic denial
// with zeroed fields.
func ParseDenial(body []byte) *models.VerificationDeniedError {
	malformed := &models.VerificationDeniedError{
		Breakdown: models.VerificationBreakdown{Message: genericDenial},
		Malformed: true,
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		log.Warn().Err(err).Msg("unreadable claim denial")
		return malformed
	}

	// detail is normally a JSON document encoded as a string
	raw := []byte(envelope.Detail)
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = []byte(encoded)
	}

	var breakdown models.VerificationBreakdown
	if err := json.Unmarshal(raw, &breakdown); err != nil {
		log.Warn().Err(err).Msg("unreadable claim denial breakdown")
		return malformed
	}
	return &models.VerificationDeniedError{Breakdown: breakdown}
}

// Me returns the account behind the current token
func (c *AccountClient) Me(ctx context.Context) (*models.User, error) {
	headers, err := c.authHeaders()
	if err != nil {
		return nil, err
	}
	body, err := c.Get(ctx, "/users/me", headers)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	var user models.User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return &user, nil
}

// Flowers returns a user's reward total through the Connect API
func (c *AccountClient) Flowers(ctx context.Context, userID int64) (int, error) {
	res, err := c.stats.CallUnary(ctx, connect.NewRequest(accountrpc.NewUserStatsRequest(userID)))
	if err != nil {
		return 0, fmt.Errorf("failed to get stats for user %d: %w", userID, err)
	}
	user := accountrpc.UserFromStatsResponse(res.Msg)
	return user.FlowersGrown, nil
}

// Leaderboard returns the top users by flowers through the Connect API
func (c *AccountClient) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	res, err := c.leaderboard.CallUnary(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard: %w", err)
	}
	return accountrpc.LeaderboardFromResponse(res.Msg), nil
}
