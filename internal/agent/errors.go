package agent

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned when Send is called while a previous
// run is still active on the same agent.
var ErrAlreadyRunning = errors.New("agent run already in progress")

// TurnLimitError reports a turn that exceeded the tool-call ceiling
// without producing a final message.
type TurnLimitError struct {
	Limit int
}

func (e *TurnLimitError) Error() string {
	return fmt.Sprintf("turn limit exceeded after %d provider turns", e.Limit)
}

// IsTurnLimit reports whether err is a turn ceiling failure.
func IsTurnLimit(err error) bool {
	var tle *TurnLimitError
	return errors.As(err, &tle)
}
