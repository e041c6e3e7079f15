package queue

import "context"

// Client hands conversion jobs to the worker fleet. A nil Client means jobs run in-process.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
