package queue

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestMessageWireFields(t *testing.T) {
	msg := Message{
		JobID:       "job-123",
		UserID:      "user-1",
		SourceKey:   "abc/def_notes.txt",
		FileName:    "notes.txt",
		MimeType:    "text/plain",
		ContentType: "audiobook",
		RequestID:   "request-456",
		EnqueuedAt:  "2026-01-30T22:00:00Z",
		Version:     1,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"jobId", "userId", "sourceKey", "fileName", "mimeType", "contentType", "requestId", "enqueuedAt", "version"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("missing %q in %s", key, payload)
		}
	}
	if _, ok := fields["title"]; ok {
		t.Fatalf("empty title should be omitted: %s", payload)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
