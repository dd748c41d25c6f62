// Package payload defines the messages exchanged with remote viewers.
package payload

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"
)

const (
	TypeFrame       = "frame"
	TypeStateChange = "stateChange"
	TypeConnected   = "connected"
	TypeCommand     = "command"
	TypeError       = "error"
)

// Viewer commands.
const (
	ActionFreeze = "freeze"
	ActionRetake = "retake"
	ActionSave   = "save"
	ActionExport = "export"
	ActionMode   = "mode"
)

var ErrBadCommand = errors.New("bad command")

type (
	Metadata struct {
		Width            int     `json:"width"`
		Height           int     `json:"height"`
		Fps              float64 `json:"fps"`
		ProcessingTimeMs float64 `json:"processingTimeMs"`
		Timestamp        int64   `json:"timestamp"`
		Mode             string  `json:"mode"`
		State            string  `json:"state"`
		IsLandscape      bool    `json:"isLandscape"`
	}
	Frame struct {
		Type      string   `json:"type"`
		Metadata  Metadata `json:"metadata"`
		ImageData string   `json:"imageData"`
	}
	StateChange struct {
		Type  string `json:"type"`
		State string `json:"state"`
		Mode  string `json:"mode"`
	}
	Connected struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	Error struct {
		Type    string `json:"type"`
		Action  string `json:"action,omitempty"`
		Message string `json:"message"`
	}
	Command struct {
		Type   string `json:"type"`
		Action string `json:"action"`
		Mode   string `json:"mode,omitempty"`
	}
)

func NewStateChange(state, mode string) ([]byte, error) {
	return json.Marshal(StateChange{Type: TypeStateChange, State: state, Mode: mode})
}

func NewConnected(message string) ([]byte, error) {
	return json.Marshal(Connected{Type: TypeConnected, Message: message})
}

func NewError(action string, err error) ([]byte, error) {
	return json.Marshal(Error{Type: TypeError, Action: action, Message: err.Error()})
}

// ParseCommand decodes a viewer command, the type field may be omitted.
func ParseCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	if c.Type != "" && c.Type != TypeCommand {
		return c, ErrBadCommand
	}
	c.Action = strings.ToLower(strings.TrimSpace(c.Action))
	switch c.Action {
	case ActionFreeze, ActionRetake, ActionSave, ActionExport:
	case ActionMode:
		if c.Mode == "" {
			return c, ErrBadCommand
		}
	default:
		return c, ErrBadCommand
	}
	return c, nil
}
