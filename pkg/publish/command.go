package publish

import (
	"encoding/json"
	"fmt"
)

// ActionReset drops the current track.
const ActionReset = "reset"

// ParseCommand decodes a control command.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("parse command: %w", err)
	}
	switch cmd.Action {
	case ActionReset:
		return cmd, nil
	default:
		return Command{}, fmt.Errorf("parse command: unknown action %q", cmd.Action)
	}
}
