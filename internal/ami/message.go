// Package ami implements the Asterisk Manager Interface client: a long-lived
// TCP connection that multiplexes action responses (FIFO-correlated, with
// ActionID as the preferred overlay) and asynchronous events.
package ami

import (
	"sort"
	"strings"
)

// Message is one "Key: Value" block of the protocol, terminated by a blank
// line. Keys are normalized to lowercase on storage; values are preserved
// verbatim.
type Message map[string]string

// set stores the pair with the key normalized; the first occurrence wins.
func (m Message) set(key, value string) {
	key = strings.ToLower(key)
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// Get returns the value for a key, case-insensitively.
func (m Message) Get(key string) string {
	return m[strings.ToLower(key)]
}

// Event returns the event name, empty when the block is not an event.
func (m Message) Event() string {
	return m["event"]
}

// Response returns the Response value, empty when the block is not a response.
func (m Message) Response() string {
	return m["response"]
}

// String renders the message with sorted keys, for logging.
func (m Message) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(m[k])
	}
	return b.String()
}
