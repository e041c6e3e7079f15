// Package workerproc turns raw queue bodies into conversion runs. Both the
// long-polling worker and the Lambda SQS handler go through HandleMessage so
// they classify failures the same way.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"narrate-backend/internal/queue"
)

// JobProcessor runs one queued conversion.
type JobProcessor interface {
	Process(ctx context.Context, msg queue.Message) error
}

// MessageMeta fingerprints a body for logs without echoing its contents.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a body that is not a message this build understands.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingJobID indicates a message without a job, user or source key.
type ErrMissingJobID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingJobID) Error() string { return "missing job id" }

// ErrProcess wraps a processing failure. It is the only error worth a redelivery.
type ErrProcess struct {
	JobID     string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process conversion"
	}
	return "process conversion: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Retryable reports whether err came from processing rather than from the body.
func Retryable(err error) bool {
	var procErr ErrProcess
	return errors.As(err, &procErr)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if msg.Version > queue.MessageVersion {
		return msg, meta, ErrDecode{Meta: meta, Err: fmt.Errorf("unsupported message version %d", msg.Version)}
	}
	if blank(msg.JobID) || blank(msg.UserID) || blank(msg.SourceKey) {
		return msg, meta, ErrMissingJobID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message so HandleMessage skips a second decode.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, processor JobProcessor, body string) error {
	if processor == nil {
		return errors.New("conversion service not configured")
	}

	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	if !ok {
		var err error
		if msg, _, err = ParseMessage(body); err != nil {
			return err
		}
	}
	if blank(msg.JobID) {
		return ErrMissingJobID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	if err := processSafely(ctx, processor, msg); err != nil {
		return ErrProcess{JobID: msg.JobID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}

// processSafely keeps a panicking processor from taking the worker down; the
// delivery is left for redelivery like any other processing failure.
func processSafely(ctx context.Context, processor JobProcessor, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return processor.Process(ctx, msg)
}
