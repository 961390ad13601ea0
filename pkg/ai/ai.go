// Package ai provides streaming clients for generative-language backends.
// The advisor reply is consumed as a lazy, single-pass sequence of chunks,
// each carrying a text delta plus optional grounding sources.
package ai

import (
	"context"

	"advisorai/pkg/domain"
)

// Turn is one prior exchange passed as model context.
type Turn struct {
	Role string // RoleUser or RoleModel
	Text string
}

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Stream yields reply chunks one at a time. Recv returns io.EOF when the
// reply is complete; any other error means the transport failed mid-reply.
type Stream interface {
	Recv() (domain.StreamChunk, error)
	Close() error
}

// Generator produces a streaming reply for a conversation history.
type Generator interface {
	StreamReply(ctx context.Context, systemPrompt string, turns []Turn) (Stream, error)
}
