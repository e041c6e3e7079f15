package queue

import "encoding/json"

// MessageVersion is the payload layout written by this build. Workers refuse
// anything newer so a rolling deploy cannot misread a job.
const MessageVersion = 1

// Message asks a worker to convert one stored document.
type Message struct {
	JobID       string `json:"jobId"`
	UserID      string `json:"userId"`
	SourceKey   string `json:"sourceKey"`
	FileName    string `json:"fileName"`
	MimeType    string `json:"mimeType"`
	ContentType string `json:"contentType"`
	Title       string `json:"title,omitempty"`
	RequestID   string `json:"requestId"`
	EnqueuedAt  string `json:"enqueuedAt"`
	Version     int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
