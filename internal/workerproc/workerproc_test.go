package workerproc

import (
	"context"
	"errors"
	"testing"

	"narrate-backend/internal/queue"
)

type recordingProcessor struct {
	got []queue.Message
	err error
}

func (p *recordingProcessor) Process(ctx context.Context, msg queue.Message) error {
	p.got = append(p.got, msg)
	return p.err
}

func validBody(t *testing.T) string {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{JobID: "job-1", UserID: "u1", SourceKey: "k/src.txt", ContentType: "podcast", RequestID: "req-1", Version: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(body)
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want any
	}{
		{"empty", "   ", ErrEmptyBody{}},
		{"bad json", "{nope", ErrDecode{}},
		{"missing job id", `{"userId":"u1","sourceKey":"k","requestId":"r"}`, ErrMissingJobID{}},
		{"missing source", `{"jobId":"j","userId":"u1"}`, ErrMissingJobID{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, meta, err := ParseMessage(tc.body)
			if err == nil {
				t.Fatalf("expected error")
			}
			switch tc.want.(type) {
			case ErrEmptyBody:
				if !errors.As(err, new(ErrEmptyBody)) {
					t.Fatalf("expected ErrEmptyBody, got %T", err)
				}
			case ErrDecode:
				if !errors.As(err, new(ErrDecode)) {
					t.Fatalf("expected ErrDecode, got %T", err)
				}
				if meta.BodySHA == "" || meta.BodyLen != len(tc.body) {
					t.Fatalf("expected meta populated, got %+v", meta)
				}
			case ErrMissingJobID:
				if !errors.As(err, new(ErrMissingJobID)) {
					t.Fatalf("expected ErrMissingJobID, got %T", err)
				}
			}
		})
	}

	msg, _, err := ParseMessage(validBody(t))
	if err != nil || msg.JobID != "job-1" {
		t.Fatalf("valid body: %+v %v", msg, err)
	}
}

func TestHandleMessage(t *testing.T) {
	p := &recordingProcessor{}
	if err := HandleMessage(context.Background(), p, validBody(t)); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(p.got) != 1 || p.got[0].RequestID != "req-1" {
		t.Fatalf("unexpected processed messages: %+v", p.got)
	}

	cause := errors.New("ledger down")
	p = &recordingProcessor{err: cause}
	err := HandleMessage(context.Background(), p, validBody(t))
	var procErr ErrProcess
	if !errors.As(err, &procErr) || procErr.JobID != "job-1" || !errors.Is(err, cause) {
		t.Fatalf("expected ErrProcess wrapping cause, got %v", err)
	}

	if err := HandleMessage(context.Background(), nil, validBody(t)); err == nil {
		t.Fatalf("expected error without processor")
	}
}

type panickingProcessor struct{}

func (panickingProcessor) Process(context.Context, queue.Message) error {
	panic("unexpected delimiter ')'")
}

func TestHandleMessageRecoversProcessorPanic(t *testing.T) {
	err := HandleMessage(context.Background(), panickingProcessor{}, validBody(t))
	var procErr ErrProcess
	if !errors.As(err, &procErr) || procErr.JobID != "job-1" {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	if !Retryable(err) {
		t.Fatalf("expected panic to leave the delivery for retry")
	}
}

func TestHandleMessageReusesParsedMessage(t *testing.T) {
	p := &recordingProcessor{}
	ctx := WithParsedMessage(context.Background(), queue.Message{JobID: "from-ctx", UserID: "u1", SourceKey: "k"})
	if err := HandleMessage(ctx, p, "ignored"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if p.got[0].JobID != "from-ctx" {
		t.Fatalf("expected context message, got %+v", p.got[0])
	}
}

func TestParseMessageRejectsNewerVersion(t *testing.T) {
	body, _ := queue.EncodeMessage(queue.Message{JobID: "j", UserID: "u", SourceKey: "k", Version: queue.MessageVersion + 1})
	_, _, err := ParseMessage(string(body))
	if !errors.As(err, new(ErrDecode)) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if Retryable(err) {
		t.Fatalf("version mismatch must not be retried")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrProcess{JobID: "j", Err: errors.New("boom")}) {
		t.Fatalf("expected processing failure to be retryable")
	}
	for _, err := range []error{ErrEmptyBody{}, ErrDecode{}, ErrMissingJobID{}, errors.New("other")} {
		if Retryable(err) {
			t.Fatalf("expected %T to be final", err)
		}
	}
}
