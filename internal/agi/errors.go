package agi

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrConnectionTerminated is delivered to every pending command when the
// FastAGI connection is lost before its reply arrives.
var ErrConnectionTerminated = errors.New("FastAGI connection terminated")

// CommandError is an AGI reply classified as failure: a status line other
// than 200, or a result the catalogue marks as the failure code.
type CommandError struct {
	Code int    // status code; 200 when the failure comes from the catalogue
	Text string // raw text received after the code
	Cmd  *Command
}

func (e *CommandError) Error() string {
	if e.Cmd != nil {
		return fmt.Sprintf("command %s failed: result=%s", e.Cmd.Name, e.Cmd.Result)
	}
	return fmt.Sprintf("command failed: %d %s", e.Code, e.Text)
}

// TimeoutError is produced by WAIT FOR DIGIT when the timeout expires with
// no digit received.
type TimeoutError struct {
	Cmd *Command
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out waiting for a digit", e.Cmd.Name)
}

// OpenError is a nominally successful result with endpos=0: Asterisk could
// not open the audio file.
type OpenError struct {
	Cmd *Command
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s failed to open the file (endpos=0)", e.Cmd.Name)
}

// TimeFormatError is a date argument that cannot be coerced to a Unix epoch.
type TimeFormatError struct {
	Value interface{}
}

func (e *TimeFormatError) Error() string {
	return fmt.Sprintf("unsupported time format: %T", e.Value)
}
