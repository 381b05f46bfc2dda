package agi

import (
	"regexp"
	"strconv"
	"strings"
)

// resultPrefix starts every successful AGI protocol reply.
const resultPrefix = "200 result="

var endposRe = regexp.MustCompile(`(?i)\s*endpos=(\d+)\s*$`)

// parsePayload splits the text following "200 result=" into its three
// fields: result, extra (stripped of parentheses and commas) and endpos
// (-1 when absent).
func parsePayload(payload string) (result, extra string, endpos int) {
	endpos = -1
	if m := endposRe.FindStringSubmatchIndex(payload); m != nil {
		// the endpos=N suffix is peeled off before splitting the rest
		endpos, _ = strconv.Atoi(payload[m[2]:m[3]])
		payload = payload[:m[0]]
	}
	payload = strings.TrimSpace(payload)
	result, rest, _ := strings.Cut(payload, " ")
	extra = strings.Trim(strings.TrimSpace(rest), "(), ")
	return result, extra, endpos
}

// parseReply builds the Command for a payload and classifies it against the
// catalogue. When the result is an unambiguous failure (it matches the
// command's failure code and not its success code, see HasError) it returns
// a CommandError that carries the parsed Command.
func parseReply(name, payload string) (Command, error) {
	result, extra, endpos := parsePayload(payload)
	cmd := NewCommand(name, result, extra, endpos)
	if cmd.HasError() {
		return cmd, &CommandError{Code: 200, Text: payload, Cmd: &cmd}
	}
	return cmd, nil
}
