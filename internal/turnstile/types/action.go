package types

import (
	"errors"
	"strings"
)

// Action is what a scan records: walking in or walking out.
type Action string

const (
	ActionEntry Action = "entry"
	ActionExit  Action = "exit"

	// DefaultAction is used when a scan does not say which way it goes.
	DefaultAction = ActionEntry
)

var ErrInvalidAction = errors.New("action must be entry or exit")

// ParseAction accepts "entry" or "exit" in any case. Empty input yields
// DefaultAction.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultAction, nil
	case string(ActionEntry):
		return ActionEntry, nil
	case string(ActionExit):
		return ActionExit, nil
	default:
		return "", ErrInvalidAction
	}
}

func (a Action) String() string { return string(a) }
