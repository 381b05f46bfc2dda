package ami

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrActionFailed is the generic AMI action failure (Response: Error).
var ErrActionFailed = errors.New("AMI action failed")

// ErrLoginFailed means the manager rejected the credentials.
var ErrLoginFailed = errors.New("AMI login failed")

// Field is one action header; field order is preserved on the wire.
type Field struct {
	Key   string
	Value string
}

// Action is a manager action ready to transmit: the name, its headers in
// order, and the error condition that turns the response into a failure.
// The wire form is the CR-LF header block terminated by a blank line.
type Action struct {
	Name   string
	Fields []Field

	// condition is the Response value that triggers failErr; "" disables
	// classification so every response settles as success (e.g. Ping).
	condition string
	failErr   error
}

// NewAction builds an arbitrary action with the standard error condition
// (Response: Error → ErrActionFailed). This is the extension point for
// actions outside the catalogue.
func NewAction(name string, fields ...Field) *Action {
	return &Action{
		Name:      name,
		Fields:    fields,
		condition: "Error",
		failErr:   ErrActionFailed,
	}
}

// WithFailure replaces the error the error condition settles with.
func (a *Action) WithFailure(err error) *Action {
	a.failErr = err
	return a
}

// classify turns the response into an error when it matches the condition.
func (a *Action) classify(msg Message) error {
	if a.condition == "" || a.failErr == nil {
		return nil
	}
	if msg.Response() == a.condition {
		if text := msg.Get("Message"); text != "" {
			return errors.Wrap(a.failErr, text)
		}
		return a.failErr
	}
	return nil
}

// render produces the action's wire block. The ActionID is added when not
// empty; the trailing blank line triggers processing on the server.
func (a *Action) render(actionID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\r\n", a.Name)
	for _, f := range a.Fields {
		fmt.Fprintf(&b, "%s: %s\r\n", f.Key, f.Value)
	}
	if actionID != "" {
		fmt.Fprintf(&b, "ActionID: %s\r\n", actionID)
	}
	b.WriteString("\r\n")
	return b.String()
}

// Login authenticates against the manager. events is "on" or "off" depending
// on whether the event stream is wanted.
func Login(username, secret, events string) *Action {
	return NewAction("Login",
		Field{"Username", username},
		Field{"Secret", secret},
		Field{"Events", events},
	).WithFailure(ErrLoginFailed)
}

// Ping is the manager keepalive; it answers Pong.
func Ping() *Action {
	a := NewAction("Ping")
	a.condition = ""
	return a
}

// AbsoluteTimeout asks to hang up the channel after timeout seconds.
func AbsoluteTimeout(channel string, timeout int) *Action {
	return NewAction("AbsoluteTimeout",
		Field{"Channel", channel},
		Field{"Timeout", fmt.Sprintf("%d", timeout)},
	)
}

// ChangeMonitor changes the filename of a channel's in-progress recording
// (filename-in / filename-out).
func ChangeMonitor(channel, file string) *Action {
	return NewAction("ChangeMonitor",
		Field{"Channel", channel},
		Field{"File", file},
	)
}

// OriginateParams holds the parameters to originate an outbound call.
type OriginateParams struct {
	Channel   string            // outbound channel (e.g. SIP/trunk/number)
	Context   string            // destination context
	Extension string            // destination extension (usually 's')
	Priority  int               // priority (usually 1)
	CallerID  string            // caller id to present
	Timeout   int               // timeout in milliseconds
	Variables map[string]string // channel variables
	Async     bool
}

// Originate places an outbound call.
func Originate(p OriginateParams) *Action {
	fields := []Field{
		{"Channel", p.Channel},
		{"Context", p.Context},
		{"Exten", p.Extension},
		{"Priority", fmt.Sprintf("%d", p.Priority)},
		{"CallerID", p.CallerID},
		{"Timeout", fmt.Sprintf("%d", p.Timeout)},
	}
	if p.Async {
		fields = append(fields, Field{"Async", "true"})
	}
	for key, value := range p.Variables {
		fields = append(fields, Field{"Variable", fmt.Sprintf("%s=%s", key, value)})
	}
	return NewAction("Originate", fields...)
}

// Hangup hangs up a specific channel, with an optional cause.
func Hangup(channel, cause string) *Action {
	fields := []Field{{"Channel", channel}}
	if cause != "" {
		fields = append(fields, Field{"Cause", cause})
	}
	return NewAction("Hangup", fields...)
}
