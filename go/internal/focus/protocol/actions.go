package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ActionType is the discriminant of a client -> coordinator action
type ActionType string

const (
	ActionStartTimer ActionType = "START_TIMER"
	ActionFail       ActionType = "FAIL"
	ActionRejoin     ActionType = "REJOIN"
	ActionChat       ActionType = "CHAT"
)

// ErrUnknownAction is returned by ParseAction for an unrecognised action
var ErrUnknownAction = errors.New("unknown action")

// Action is an outbound client request. Duration is only meaningful for
// START_TIMER and Message only for CHAT.
type Action struct {
	Action   ActionType `json:"action"`
	Duration int        `json:"duration,omitempty"` // minutes
	Message  string     `json:"message,omitempty"`
}

func StartTimer(minutes int) Action {
	return Action{Action: ActionStartTimer, Duration: minutes}
}

func Fail() Action {
	return Action{Action: ActionFail}
}

func Rejoin() Action {
	return Action{Action: ActionRejoin}
}

func Chat(message string) Action {
	return Action{Action: ActionChat, Message: message}
}

// ParseAction decodes a raw frame sent by a client
func ParseAction(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return Action{}, fmt.Errorf("failed to decode action: %w", err)
	}

	switch a.Action {
	case ActionStartTimer, ActionFail, ActionRejoin, ActionChat:
		return a, nil
	default:
		return a, fmt.Errorf("%w: %q", ErrUnknownAction, a.Action)
	}
}
