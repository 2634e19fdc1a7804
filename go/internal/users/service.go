package users

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/focushub/go/internal/accountrpc"
	"github.com/mcdev12/focushub/go/internal/models"
	"google.golang.org/protobuf/types/known/structpb"
)

// UsersApp defines what the service layer needs from the users application
type UsersApp interface {
	Register(ctx context.Context, req CreateUserRequest) (*models.User, error)
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
}

// Service implements the AccountService Connect procedures
type Service struct {
	app UsersApp
}

// NewService creates a new account Connect service
func NewService(app UsersApp) *Service {
	return &Service{
		app: app,
	}
}

// GetUserStats returns a user's flower total
func (s *Service) GetUserStats(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	id, err := accountrpc.UserIDFromRequest(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	user, err := s.app.GetUser(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(accountrpc.NewUserStatsResponse(user)), nil
}

// GetLeaderboard returns the top users by flowers
func (s *Service) GetLeaderboard(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	entries, err := s.app.Leaderboard(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(accountrpc.NewLeaderboardResponse(entries)), nil
}

// RegisterRoutes mounts the Connect procedures on mux
func (s *Service) RegisterRoutes(mux *http.ServeMux, opts ...connect.HandlerOption) {
	mux.Handle(accountrpc.GetUserStatsProcedure, connect.NewUnaryHandler(
		accountrpc.GetUserStatsProcedure, s.GetUserStats, opts...,
	))
	mux.Handle(accountrpc.GetLeaderboardProcedure, connect.NewUnaryHandler(
		accountrpc.GetLeaderboardProcedure, s.GetLeaderboard, opts...,
	))
}
