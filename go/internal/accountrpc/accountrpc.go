// Package accountrpc holds the Connect procedure names of the account service
// and the google.protobuf.Struct shapes exchanged over them.
package accountrpc

import (
	"errors"
	"fmt"

	"github.com/mcdev12/focushub/go/internal/models"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	AccountServiceName = "focushub.account.v1.AccountService"

	GetUserStatsProcedure   = "/" + AccountServiceName + "/GetUserStats"
	GetLeaderboardProcedure = "/" + AccountServiceName + "/GetLeaderboard"

	// LeaderboardSize is the number of entries returned by GetLeaderboard
	LeaderboardSize = 10
)

var ErrMissingField = errors.New("missing field")

// NewUserStatsRequest builds {"user_id": id}
func NewUserStatsRequest(userID int64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user_id": structpb.NewNumberValue(float64(userID)),
	}}
}

// UserIDFromRequest reads user_id from a GetUserStats request
func UserIDFromRequest(req *structpb.Struct) (int64, error) {
	v, ok := req.GetFields()["user_id"]
	if !ok {
		return 0, fmt.Errorf("%w: user_id", ErrMissingField)
	}
	id, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || id.NumberValue <= 0 {
		return 0, fmt.Errorf("invalid user_id: %v", v.AsInterface())
	}
	return int64(id.NumberValue), nil
}

// NewUserStatsResponse builds {"user_id", "username", "flowers"}
func NewUserStatsResponse(user *models.User) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user_id":  structpb.NewNumberValue(float64(user.ID)),
		"username": structpb.NewStringValue(user.Username),
		"flowers":  structpb.NewNumberValue(float64(user.FlowersGrown)),
	}}
}

// UserFromStatsResponse is the inverse of NewUserStatsResponse
func UserFromStatsResponse(res *structpb.Struct) models.User {
	fields := res.GetFields()
	return models.User{
		ID:           int64(fields["user_id"].GetNumberValue()),
		Username:     fields["username"].GetStringValue(),
		FlowersGrown: int(fields["flowers"].GetNumberValue()),
	}
}

// NewLeaderboardResponse builds {"entries": [{"username", "flowers"}, ...]}
func NewLeaderboardResponse(entries []models.LeaderboardEntry) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(entries))
	for _, e := range entries {
		values = append(values, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			"username": structpb.NewStringValue(e.Username),
			"flowers":  structpb.NewNumberValue(float64(e.Flowers)),
		}}))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"entries": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

// LeaderboardFromResponse is the inverse of NewLeaderboardResponse
func LeaderboardFromResponse(res *structpb.Struct) []models.LeaderboardEntry {
	list := res.GetFields()["entries"].GetListValue().GetValues()
	entries := make([]models.LeaderboardEntry, 0, len(list))
	for _, v := range list {
		fields := v.GetStructValue().GetFields()
		entries = append(entries, models.LeaderboardEntry{
			Username: fields["username"].GetStringValue(),
			Flowers:  int(fields["flowers"].GetNumberValue()),
		})
	}
	return entries
}
