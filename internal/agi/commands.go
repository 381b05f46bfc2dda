package agi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TDDState is the tri-state argument of TDD MODE.
type TDDState int

const (
	TDDOff TDDState = iota
	TDDOn
	TDDMate
)

func (t TDDState) token() string {
	switch t {
	case TDDOn:
		return "ON"
	case TDDMate:
		return "MATE"
	default:
		return "OFF"
	}
}

func toMSec(dur time.Duration) string {
	return strconv.Itoa(int(dur.Milliseconds()))
}

// quote wraps digit masks and free text in double quotes; the empty mask ""
// disables the escape set.
func quote(s string) string {
	return `"` + s + `"`
}

func filterAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func filterDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// epochSeconds coerces the accepted date formats to a Unix epoch.
func epochSeconds(date interface{}) (int64, error) {
	switch v := date.(type) {
	case time.Time:
		return v.Unix(), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, &TimeFormatError{Value: date}
	}
}

// checkStreamResult post-processes the streaming command family. A success
// with endpos=0 is a failure to open; a result outside the catalogue is the
// ASCII code of the digit pressed.
func checkStreamResult(cmd Command, err error) (Command, error) {
	if err != nil {
		return cmd, err
	}
	if cmd.IsSuccess() && cmd.Endpos == 0 {
		return cmd, &OpenError{Cmd: &cmd}
	}
	if !cmd.IsDefault() {
		cmd.ConvertDTMF()
	}
	return cmd, nil
}

// checkSayResult post-processes the SAY family: only decodes DTMF.
func checkSayResult(cmd Command, err error) (Command, error) {
	if err != nil {
		return cmd, err
	}
	if !cmd.IsDefault() {
		cmd.ConvertDTMF()
	}
	return cmd, nil
}

// Answer answers the channel. Result is 0 on success, -1 on failure.
func (s *Session) Answer() (Command, error) {
	return s.Send("ANSWER", "").Wait()
}

// ChannelStatus returns the status of the given channel, or of the current
// one when channel is empty. See the State constants.
func (s *Session) ChannelStatus(channel string) (Command, error) {
	return s.Send("CHANNEL STATUS", channel).Wait()
}

// ControlStreamFile plays a file allowing playback to be controlled with
// digits. The filename goes without extension.
func (s *Session) ControlStreamFile(filename, escapeDigits string, skipMS int, ffChar, rewChar, pauseChar string) (Command, error) {
	if ffChar == "" {
		ffChar = "*"
	}
	if rewChar == "" {
		rewChar = "#"
	}
	args := fmt.Sprintf("%s %s %d %s %s", filename, quote(escapeDigits), skipMS, quote(ffChar), quote(rewChar))
	if pauseChar != "" {
		args += " " + quote(pauseChar)
	}
	return checkStreamResult(s.Send("CONTROL STREAM FILE", args).Wait())
}

// DatabaseDel removes a key from the Asterisk database. Result is 1/0.
func (s *Session) DatabaseDel(family, key string) (Command, error) {
	return s.Send("DATABASE DEL", family+" "+key).Wait()
}

// DatabaseDelTree removes a family or a key tree. Without keyTree only the
// family token is transmitted, with no trailing space.
func (s *Session) DatabaseDelTree(family string, keyTree ...string) (Command, error) {
	args := family
	if len(keyTree) > 0 && keyTree[0] != "" {
		args += " " + keyTree[0]
	}
	return s.Send("DATABASE DELTREE", args).Wait()
}

// DatabaseGet reads a key; the value is left in Extra. Result is 1/0.
func (s *Session) DatabaseGet(family, key string) (Command, error) {
	return s.Send("DATABASE GET", family+" "+key).Wait()
}

// DatabasePut writes a key. Result is 1/0.
func (s *Session) DatabasePut(family, key, value string) (Command, error) {
	return s.Send("DATABASE PUT", fmt.Sprintf("%s %s %s", family, key, value)).Wait()
}

// Exec runs a dialplan application. Options are pipe-separated, as Asterisk
// requires. Result is -2 when the application does not exist.
func (s *Session) Exec(application string, options ...string) (Command, error) {
	args := application
	if len(options) > 0 {
		args += " " + quote(strings.Join(options, "|"))
	}
	return s.Send("EXEC", args).Wait()
}

// GetData plays a file and collects several DTMF digits. The timeout is
// given as a time.Duration and transmitted in whole milliseconds.
func (s *Session) GetData(filename string, timeout time.Duration, maxDigits int) (Command, error) {
	args := fmt.Sprintf("%s %s %d", filename, toMSec(timeout), maxDigits)
	return s.Send("GET DATA", args).Wait()
}

// GetFullVariable evaluates a channel expression; understands complex names
// and builtin variables. The value is left in Extra.
func (s *Session) GetFullVariable(name string, channel ...string) (Command, error) {
	args := name
	if len(channel) > 0 && channel[0] != "" {
		args += " " + channel[0]
	}
	return s.Send("GET FULL VARIABLE", args).Wait()
}

// GetOption is STREAM FILE with a digit wait timeout.
func (s *Session) GetOption(filename, escapeDigits string, timeout time.Duration) (Command, error) {
	args := filename + " " + quote(escapeDigits)
	if timeout > 0 {
		args += " " + toMSec(timeout)
	}
	return checkStreamResult(s.Send("GET OPTION", args).Wait())
}

// GetVariable reads a channel variable; the value is left in Extra.
func (s *Session) GetVariable(name string) (Command, error) {
	return s.Send("GET VARIABLE", name).Wait()
}

// Hangup hangs up the given channel, or the current one when empty.
func (s *Session) Hangup(channel string) (Command, error) {
	return s.Send("HANGUP", channel).Wait()
}

// Noop does nothing. Result is always 0.
func (s *Session) Noop() (Command, error) {
	return s.Send("NOOP", "").Wait()
}

// ReceiveChar receives one character on channels that support text.
func (s *Session) ReceiveChar(timeout time.Duration) (Command, error) {
	return s.Send("RECEIVE CHAR", toMSec(timeout)).Wait()
}

// ReceiveText receives a text string; a timeout of 0 waits forever on the
// Asterisk side.
func (s *Session) ReceiveText(timeout time.Duration) (Command, error) {
	return s.Send("RECEIVE TEXT", toMSec(timeout)).Wait()
}

// RecordOptions holds the RECORD FILE options.
type RecordOptions struct {
	Format        string        // file format; defaults to wav
	EscapeDigits  string        // digits that end the recording
	Timeout       time.Duration // maximum time; <=0 records with no limit
	OffsetSamples int
	Beep          bool
	Silence       int // seconds of silence that stop the recording; 0 disables
}

// RecordFile records channel audio to a file on the server.
func (s *Session) RecordFile(filename string, opts RecordOptions) (Command, error) {
	if opts.Format == "" {
		opts.Format = "wav"
	}
	timeout := int64(-1)
	if opts.Timeout > 0 {
		timeout = opts.Timeout.Milliseconds()
	}
	args := fmt.Sprintf("%s %s %s %d", filename, opts.Format, quote(opts.EscapeDigits), timeout)
	if opts.OffsetSamples > 0 {
		args += " " + strconv.Itoa(opts.OffsetSamples)
	}
	if opts.Beep {
		args += " BEEP"
	}
	if opts.Silence > 0 {
		args += " s=" + strconv.Itoa(opts.Silence)
	}
	return s.Send("RECORD FILE", args).Wait()
}

// SayAlpha spells out a string; filtered to alphanumerics before sending.
func (s *Session) SayAlpha(text, escapeDigits string) (Command, error) {
	args := filterAlnum(text) + " " + quote(escapeDigits)
	return checkSayResult(s.Send("SAY ALPHA", args).Wait())
}

// SayDate says a date. Accepts time.Time or an epoch as int, int64 or
// float64; any other type fails with TimeFormatError without touching the
// network.
func (s *Session) SayDate(date interface{}, escapeDigits string) (Command, error) {
	secs, err := epochSeconds(date)
	if err != nil {
		return Command{Endpos: -1}, err
	}
	args := fmt.Sprintf("%d %s", secs, quote(escapeDigits))
	return checkSayResult(s.Send("SAY DATE", args).Wait())
}

// SayDateTime says date and time with the optional voicemail.conf format
// (default ABdY 'digits/at' IMp) and optional timezone.
func (s *Session) SayDateTime(date interface{}, escapeDigits, format, timezone string) (Command, error) {
	secs, err := epochSeconds(date)
	if err != nil {
		return Command{Endpos: -1}, err
	}
	args := fmt.Sprintf("%d %s", secs, quote(escapeDigits))
	if format != "" {
		args += " " + format
	}
	if timezone != "" {
		args += " " + timezone
	}
	return checkSayResult(s.Send("SAY DATETIME", args).Wait())
}

// SayDigits says a string digit by digit; filtered to digits.
func (s *Session) SayDigits(number, escapeDigits string) (Command, error) {
	args := filterDigits(number) + " " + quote(escapeDigits)
	return checkSayResult(s.Send("SAY DIGITS", args).Wait())
}

// SayNumber says a whole number; filtered to digits.
func (s *Session) SayNumber(number, escapeDigits string) (Command, error) {
	args := filterDigits(number) + " " + quote(escapeDigits)
	return checkSayResult(s.Send("SAY NUMBER", args).Wait())
}

// SayPhonetic spells with the phonetic alphabet; filtered to alphanumerics.
func (s *Session) SayPhonetic(text, escapeDigits string) (Command, error) {
	args := filterAlnum(text) + " " + quote(escapeDigits)
	return checkSayResult(s.Send("SAY PHONETIC", args).Wait())
}

// SayTime says the time of an instant. Same date types as SayDate.
func (s *Session) SayTime(date interface{}, escapeDigits string) (Command, error) {
	secs, err := epochSeconds(date)
	if err != nil {
		return Command{Endpos: -1}, err
	}
	args := fmt.Sprintf("%d %s", secs, quote(escapeDigits))
	return checkSayResult(s.Send("SAY TIME", args).Wait())
}

// SendImage sends an image on channels that support it; no extension.
func (s *Session) SendImage(filename string) (Command, error) {
	return s.Send("SEND IMAGE", filename).Wait()
}

// SendText sends text on channels that support it.
func (s *Session) SendText(text string) (Command, error) {
	return s.Send("SEND TEXT", quote(text)).Wait()
}

// SetAutohangup hangs up automatically after the given seconds; 0 disables.
func (s *Session) SetAutohangup(seconds int) (Command, error) {
	return s.Send("SET AUTOHANGUP", strconv.Itoa(seconds)).Wait()
}

// SetCallerID changes the caller id of the current channel.
func (s *Session) SetCallerID(number string) (Command, error) {
	return s.Send("SET CALLERID", number).Wait()
}

// SetContext changes the context on AGI exit. Not validated to exist.
func (s *Session) SetContext(context string) (Command, error) {
	return s.Send("SET CONTEXT", context).Wait()
}

// SetExtension changes the extension on AGI exit.
func (s *Session) SetExtension(extension string) (Command, error) {
	return s.Send("SET EXTENSION", extension).Wait()
}

// SetMusic enables or disables music on hold, with an optional class.
func (s *Session) SetMusic(on bool, musicClass ...string) (Command, error) {
	args := "OFF"
	if on {
		args = "ON"
	}
	if len(musicClass) > 0 && musicClass[0] != "" {
		args += " " + musicClass[0]
	}
	return s.Send("SET MUSIC", args).Wait()
}

// SetPriority changes the dialplan priority on AGI exit.
func (s *Session) SetPriority(priority string) (Command, error) {
	return s.Send("SET PRIORITY", priority).Wait()
}

// SetVariable writes a channel variable. Result is always 1.
func (s *Session) SetVariable(name, value string) (Command, error) {
	return s.Send("SET VARIABLE", name+" "+quote(value)).Wait()
}

// StreamFile plays an audio file; the filename goes without extension and
// the optional offset is the sample where playback starts.
func (s *Session) StreamFile(filename, escapeDigits string, offset ...int) (Command, error) {
	args := filename + " " + quote(escapeDigits)
	if len(offset) > 0 && offset[0] != 0 {
		args += " " + strconv.Itoa(offset[0])
	}
	return checkStreamResult(s.Send("STREAM FILE", args).Wait())
}

// TDDMode toggles the channel's TDD mode (telephony device for the deaf).
func (s *Session) TDDMode(mode TDDState) (Command, error) {
	return s.Send("TDD MODE", mode.token()).Wait()
}

// Verbose writes to the Asterisk console verbose log.
func (s *Session) Verbose(message string, level int) (Command, error) {
	args := quote(message)
	if level > 0 {
		args += " " + strconv.Itoa(level)
	}
	return s.Send("VERBOSE", args).Wait()
}

// WaitForDigit waits for a DTMF digit. The timeout is given as a
// time.Duration and transmitted in milliseconds; a negative timeout is sent
// as -1, which blocks indefinitely on the Asterisk side. On
// timeout it returns TimeoutError; when a digit arrives, Result carries the
// already-decoded character.
func (s *Session) WaitForDigit(timeout time.Duration) (Command, error) {
	ms := strconv.FormatInt(timeout.Milliseconds(), 10)
	if timeout < 0 {
		ms = "-1"
	}
	cmd, err := s.Send("WAIT FOR DIGIT", ms).Wait()
	if err != nil {
		return cmd, err
	}
	if !cmd.IsDefault() {
		cmd.ConvertDTMF()
		return cmd, nil
	}
	if cmd.IsSuccess() {
		return cmd, &TimeoutError{Cmd: &cmd}
	}
	return cmd, nil
}
