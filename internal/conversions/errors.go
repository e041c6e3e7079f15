package conversions

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrPipelineUsed = errors.New("pipeline already run")
	// ErrDebitInconsistency means audio was produced but the token debit failed.
	ErrDebitInconsistency = errors.New("audio generated but token debit failed")
	ErrJobNotFound        = errors.New("conversion not found")
	ErrAudioNotReady      = errors.New("conversion audio not ready")
	ErrInvalidInput       = errors.New("invalid input")
	// ErrStepPanicked means a collaborator panicked while the job was running.
	ErrStepPanicked = errors.New("conversion step panicked")
	// ErrInterrupted marks a job left mid-pipeline by a process that went away.
	ErrInterrupted = errors.New("conversion interrupted")
)

// StageFailure records the stage that was active when a collaborator failed.
type StageFailure struct {
	Stage Stage
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error {
	return e.Err
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return msg
}
