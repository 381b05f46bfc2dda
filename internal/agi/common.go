package agi

import (
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrMaxGroupCount means the account already reached its concurrent calls cap.
var ErrMaxGroupCount = errors.New("maximum concurrent calls for the account")

// CheckGroupCount caps concurrent calls per accountcode: it assigns the
// channel to the agi_accountcode group and asks how many channels share it.
// Returns the group count, or ErrMaxGroupCount above maxGroupCalls.
func CheckGroupCount(s *Session, maxGroupCalls int) (int, error) {
	if _, err := s.SetVariable("GROUP", s.Env["agi_accountcode"]); err != nil {
		return 0, err
	}
	cmd, err := s.GetFullVariable("${GROUP_COUNT(${GROUP})}")
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(cmd.Extra)
	if err != nil {
		return 0, errors.Wrapf(err, "unreadable GROUP_COUNT: %q", cmd.Extra)
	}
	if count > maxGroupCalls {
		s.logger.Info("group count limit reached",
			zap.String("accountcode", s.Env["agi_accountcode"]),
			zap.Int("count", count),
			zap.Int("max", maxGroupCalls))
		return count, ErrMaxGroupCount
	}
	return count, nil
}
