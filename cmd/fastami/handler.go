package main

import (
	"time"

	"go.uber.org/zap"

	"fastami/internal/agi"
	"fastami/internal/cdr"
)

// helloHandler is the demo handler: it answers, plays the audio requested in
// the AGI URL (?sound=...), waits for one digit and records the CDR.
type helloHandler struct {
	repo   *cdr.Repository // nil when CDR is disabled
	logger *zap.Logger
}

func (h *helloHandler) StartCall(s *agi.Session) error {
	start := time.Now()

	var recID int64
	if h.repo != nil {
		id, err := h.repo.Create(&cdr.Record{
			SessionID:   s.ID,
			Uniqueid:    s.Env["agi_uniqueid"],
			Channel:     s.Env["agi_channel"],
			CallerID:    s.Env["agi_callerid"],
			Context:     s.Env["agi_context"],
			Extension:   s.Env["agi_extension"],
			Disposition: "INITIATED",
		})
		if err != nil {
			h.logger.Error("failed to create CDR", zap.Error(err))
		}
		recID = id
	}

	finish := func(answered bool, dtmf *string, disposition string) {
		if h.repo == nil || recID == 0 {
			return
		}
		dur := int(time.Since(start).Seconds())
		if err := h.repo.Finish(recID, answered, dtmf, disposition, dur); err != nil {
			h.logger.Error("failed to update CDR", zap.Error(err))
		}
	}

	if _, err := s.Answer(); err != nil {
		finish(false, nil, "FAILED")
		return err
	}

	sound := s.URL.Params["sound"]
	if sound == "" {
		sound = "hello-world"
	}
	if _, err := s.StreamFile(sound, ""); err != nil {
		finish(true, nil, "FAILED")
		return err
	}

	cmd, err := s.WaitForDigit(10 * time.Second)
	switch err.(type) {
	case nil:
		h.logger.Info("digit received",
			zap.String("session_id", s.ID), zap.String("digit", cmd.Result))
		finish(true, &cmd.Result, "COMPLETED")
	case *agi.TimeoutError:
		h.logger.Info("no digit received", zap.String("session_id", s.ID))
		finish(true, nil, "NOANSWER")
	default:
		finish(true, nil, "FAILED")
		return err
	}

	_, err = s.Hangup("")
	return err
}
