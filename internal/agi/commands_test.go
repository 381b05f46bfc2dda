package agi

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exchange runs a command against a fake Asterisk that checks the wire
// line and returns the canned reply.
func exchange(t *testing.T, wantLine, reply string, call func(s *Session) (Command, error)) (Command, error) {
	t.Helper()
	s, server := newTestSession(t)
	got := respond(server, reply)
	cmd, err := call(s)
	assert.Equal(t, wantLine, <-got)
	return cmd, err
}

func TestCommandWireFormats(t *testing.T) {
	tests := []struct {
		name     string
		wantLine string
		reply    string
		call     func(s *Session) (Command, error)
	}{
		{
			name:     "answer",
			wantLine: "ANSWER",
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.Answer() },
		},
		{
			name:     "channel status current channel",
			wantLine: "CHANNEL STATUS",
			reply:    "200 result=3",
			call:     func(s *Session) (Command, error) { return s.ChannelStatus("") },
		},
		{
			name:     "channel status with channel",
			wantLine: "CHANNEL STATUS SIP/tester-1c20",
			reply:    "200 result=6",
			call:     func(s *Session) (Command, error) { return s.ChannelStatus("SIP/tester-1c20") },
		},
		{
			name:     "control stream file",
			wantLine: `CONTROL STREAM FILE test_audio "" 0 "*" "#"`,
			reply:    "200 result=0 endpos=123",
			call: func(s *Session) (Command, error) {
				return s.ControlStreamFile("test_audio", "", 0, "", "", "")
			},
		},
		{
			name:     "database del",
			wantLine: "DATABASE DEL test t_key",
			reply:    "200 result=1",
			call:     func(s *Session) (Command, error) { return s.DatabaseDel("test", "t_key") },
		},
		{
			name:     "database deltree without key tree",
			wantLine: "DATABASE DELTREE test",
			reply:    "200 result=1",
			call:     func(s *Session) (Command, error) { return s.DatabaseDelTree("test") },
		},
		{
			name:     "database deltree with key tree",
			wantLine: "DATABASE DELTREE test tree_key",
			reply:    "200 result=1",
			call:     func(s *Session) (Command, error) { return s.DatabaseDelTree("test", "tree_key") },
		},
		{
			name:     "database put",
			wantLine: "DATABASE PUT test t_key tEsT_vAl",
			reply:    "200 result=1 (tEsT_vAl)",
			call:     func(s *Session) (Command, error) { return s.DatabasePut("test", "t_key", "tEsT_vAl") },
		},
		{
			name:     "exec with options",
			wantLine: `EXEC Dial "IAX2/alice|20"`,
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.Exec("Dial", "IAX2/alice", "20") },
		},
		{
			name:     "get data",
			wantLine: "GET DATA test_audio 2000 5",
			reply:    "200 result=Xyz (timeout)",
			call: func(s *Session) (Command, error) {
				return s.GetData("test_audio", 2*time.Second, 5)
			},
		},
		{
			name:     "get full variable",
			wantLine: "GET FULL VARIABLE ${GROUP_COUNT(${GROUP})}",
			reply:    "200 result=1 3",
			call: func(s *Session) (Command, error) {
				return s.GetFullVariable("${GROUP_COUNT(${GROUP})}")
			},
		},
		{
			name:     "get option",
			wantLine: `GET OPTION test_audio "" 123000`,
			reply:    "200 result=0 endpos=123456",
			call: func(s *Session) (Command, error) {
				return s.GetOption("test_audio", "", 123*time.Second)
			},
		},
		{
			name:     "get variable",
			wantLine: "GET VARIABLE var",
			reply:    "200 result=1 (TeSt)",
			call:     func(s *Session) (Command, error) { return s.GetVariable("var") },
		},
		{
			name:     "hangup current channel",
			wantLine: "HANGUP",
			reply:    "200 result=1",
			call:     func(s *Session) (Command, error) { return s.Hangup("") },
		},
		{
			name:     "receive char",
			wantLine: "RECEIVE CHAR 1000",
			reply:    "200 result=88",
			call:     func(s *Session) (Command, error) { return s.ReceiveChar(time.Second) },
		},
		{
			name:     "record file",
			wantLine: `RECORD FILE recording wav "#" 5000 BEEP s=3`,
			reply:    "200 result=0 (timeout) endpos=123456",
			call: func(s *Session) (Command, error) {
				return s.RecordFile("recording", RecordOptions{
					EscapeDigits: "#",
					Timeout:      5 * time.Second,
					Beep:         true,
					Silence:      3,
				})
			},
		},
		{
			name:     "say alpha filters non alphanumerics",
			wantLine: `SAY ALPHA asdasf ""`,
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.SayAlpha("asd-asf!", "") },
		},
		{
			name:     "say date",
			wantLine: `SAY DATE 1234567890 ""`,
			reply:    "200 result=0",
			call: func(s *Session) (Command, error) {
				return s.SayDate(time.Unix(1234567890, 0), "")
			},
		},
		{
			name:     "say datetime with format",
			wantLine: `SAY DATETIME 1234567890 "49" ABdY UTC`,
			reply:    "200 result=0",
			call: func(s *Session) (Command, error) {
				return s.SayDateTime(int64(1234567890), "49", "ABdY", "UTC")
			},
		},
		{
			name:     "say digits filters non digits",
			wantLine: `SAY DIGITS 123 ""`,
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.SayDigits("1a2b3", "") },
		},
		{
			name:     "say number",
			wantLine: `SAY NUMBER 666 ""`,
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.SayNumber("666", "") },
		},
		{
			name:     "send image",
			wantLine: "SEND IMAGE logo",
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.SendImage("logo") },
		},
		{
			name:     "send text",
			wantLine: `SEND TEXT "text to send"`,
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.SendText("text to send") },
		},
		{
			name:     "set autohangup",
			wantLine: "SET AUTOHANGUP 0",
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.SetAutohangup(0) },
		},
		{
			name:     "set callerid",
			wantLine: "SET CALLERID 123123",
			reply:    "200 result=1",
			call:     func(s *Session) (Command, error) { return s.SetCallerID("123123") },
		},
		{
			name:     "set music with class",
			wantLine: "SET MUSIC ON jazz",
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.SetMusic(true, "jazz") },
		},
		{
			name:     "set music off",
			wantLine: "SET MUSIC OFF",
			reply:    "200 result=0",
			call:     func(s *Session) (Command, error) { return s.SetMusic(false) },
		},
		{
			name:     "set variable is quoted",
			wantLine: `SET VARIABLE testvar "test"`,
			reply:    "200 result=1",
			call:     func(s *Session) (Command, error) { return s.SetVariable("testvar", "test") },
		},
		{
			name:     "stream file",
			wantLine: `STREAM FILE test_audio ""`,
			reply:    "200 result=0 endpos=123",
			call:     func(s *Session) (Command, error) { return s.StreamFile("test_audio", "") },
		},
		{
			name:     "stream file with offset",
			wantLine: `STREAM FILE test_audio "19" 300`,
			reply:    "200 result=0 endpos=500",
			call:     func(s *Session) (Command, error) { return s.StreamFile("test_audio", "19", 300) },
		},
		{
			name:     "tdd mode mate",
			wantLine: "TDD MODE MATE",
			reply:    "200 result=1",
			call:     func(s *Session) (Command, error) { return s.TDDMode(TDDMate) },
		},
		{
			name:     "verbose",
			wantLine: `VERBOSE "test message 1 or 2" 4`,
			reply:    "200 result=1",
			call:     func(s *Session) (Command, error) { return s.Verbose("test message 1 or 2", 4) },
		},
		{
			name:     "wait for digit in milliseconds",
			wantLine: "WAIT FOR DIGIT 10000",
			reply:    "200 result=55",
			call:     func(s *Session) (Command, error) { return s.WaitForDigit(10 * time.Second) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exchange(t, tt.wantLine, tt.reply, tt.call)
			assert.NoError(t, err)
		})
	}
}

func TestStreamFileDigitPressed(t *testing.T) {
	cmd, err := exchange(t, `STREAM FILE test_audio ""`, "200 result=55 endpos=123",
		func(s *Session) (Command, error) { return s.StreamFile("test_audio", "") })
	require.NoError(t, err)
	assert.Equal(t, "7", cmd.Result)
	assert.Equal(t, 123, cmd.Endpos)
	assert.True(t, cmd.HasDTMF)
}

func TestStreamFileFailureOnOpen(t *testing.T) {
	_, err := exchange(t, `STREAM FILE test_audio ""`, "200 result=0 endpos=0",
		func(s *Session) (Command, error) { return s.StreamFile("test_audio", "") })
	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 0, openErr.Cmd.Endpos)
}

func TestStreamFileFailure(t *testing.T) {
	_, err := exchange(t, `STREAM FILE foo ""`, "200 result=-1 endpos=123",
		func(s *Session) (Command, error) { return s.StreamFile("foo", "") })
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	require.NotNil(t, cmdErr.Cmd)
	assert.Equal(t, "-1", cmdErr.Cmd.Result)
}

func TestGetOptionDigitPressed(t *testing.T) {
	cmd, err := exchange(t, `GET OPTION test_audio ""`, "200 result=88 endpos=123456",
		func(s *Session) (Command, error) { return s.GetOption("test_audio", "", 0) })
	require.NoError(t, err)
	assert.Equal(t, "X", cmd.Result)
	assert.True(t, cmd.HasDTMF)
}

func TestControlStreamFileFailureOnOpen(t *testing.T) {
	_, err := exchange(t, `CONTROL STREAM FILE test_audio "" 0 "*" "#"`, "200 result=0 endpos=0",
		func(s *Session) (Command, error) { return s.ControlStreamFile("test_audio", "", 0, "", "", "") })
	var openErr *OpenError
	assert.ErrorAs(t, err, &openErr)
}

func TestWaitForDigitTimeout(t *testing.T) {
	_, err := exchange(t, "WAIT FOR DIGIT 123", "200 result=0",
		func(s *Session) (Command, error) { return s.WaitForDigit(123 * time.Millisecond) })
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestWaitForDigitFailure(t *testing.T) {
	_, err := exchange(t, "WAIT FOR DIGIT -1", "200 result=-1",
		func(s *Session) (Command, error) { return s.WaitForDigit(-1) })
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestWaitForDigitPressed(t *testing.T) {
	cmd, err := exchange(t, "WAIT FOR DIGIT 10000", "200 result=55",
		func(s *Session) (Command, error) { return s.WaitForDigit(10 * time.Second) })
	require.NoError(t, err)
	assert.Equal(t, "7", cmd.Result)
	assert.True(t, cmd.HasDTMF)
}

func TestSayAlphaDigitPressed(t *testing.T) {
	cmd, err := exchange(t, `SAY ALPHA hola ""`, "200 result=55",
		func(s *Session) (Command, error) { return s.SayAlpha("hola", "") })
	require.NoError(t, err)
	assert.Equal(t, "7", cmd.Result)
	assert.True(t, cmd.HasDTMF)
}

func TestSayDateBadFormatFailsWithoutTransmitting(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := NewSession(client)
	_, err := s.SayDate("2007 01 30 16:12", "")
	var fmtErr *TimeFormatError
	require.ErrorAs(t, err, &fmtErr)
}

func TestDatabaseGetValue(t *testing.T) {
	cmd, err := exchange(t, "DATABASE GET test t_key", "200 result=1 (TEST_PARAM)",
		func(s *Session) (Command, error) { return s.DatabaseGet("test", "t_key") })
	require.NoError(t, err)
	assert.Equal(t, "TEST_PARAM", cmd.Extra)
}

func TestDatabaseGetFailure(t *testing.T) {
	_, err := exchange(t, "DATABASE GET test t_key", "200 result=0",
		func(s *Session) (Command, error) { return s.DatabaseGet("test", "t_key") })
	var cmdErr *CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestCheckGroupCount(t *testing.T) {
	s, server := newTestSession(t)
	respond(server, "200 result=1", "200 result=1 3")

	count, err := CheckGroupCount(s, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCheckGroupCountExceeded(t *testing.T) {
	s, server := newTestSession(t)
	respond(server, "200 result=1", "200 result=1 7")

	_, err := CheckGroupCount(s, 5)
	assert.ErrorIs(t, err, ErrMaxGroupCount)
}
