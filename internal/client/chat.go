package client

import (
	"context"

	"github.com/neuromance/neuromance-go/internal/daemonrpc"
	"github.com/neuromance/neuromance-go/internal/domain"
)

// ChatSession is a bidirectional chat turn in progress: the CLI reads
// events with Next and answers any tool-approval request the daemon raises
// with Approve, mirroring the original client's ChatSession.
type ChatSession struct {
	stream daemonrpc.ChatClientStream
}

// Chat opens a new bidirectional Chat stream and sends the first
// send-message frame, the only point in the protocol the daemon accepts one
// (spec.md §4.6).
func (c *Client) Chat(ctx context.Context, conversationID, content string) (*ChatSession, error) {
	stream, err := c.Client.Chat(ctx)
	if err != nil {
		return nil, err
	}
	first := &daemonrpc.ChatStreamRequest{
		SendMessage: &daemonrpc.ChatRequest{ConversationID: conversationID, Content: content},
	}
	if err := stream.Send(first); err != nil {
		return nil, err
	}
	return &ChatSession{stream: stream}, nil
}

// Next reads the next event the daemon emits, returning (nil, io.EOF) once
// the stream ends cleanly.
func (s *ChatSession) Next() (*daemonrpc.ChatEvent, error) {
	event, err := s.stream.Recv()
	if err != nil {
		return nil, err
	}
	return event, nil
}

// Approve answers a ToolApprovalRequest event the daemon most recently sent.
func (s *ChatSession) Approve(conversationID, toolCallID string, verdict domain.Approval) error {
	return s.stream.Send(&daemonrpc.ChatStreamRequest{
		Approval: &daemonrpc.ApproveToolRequest{
			ConversationID: conversationID,
			ToolCallID:     toolCallID,
			Verdict:        verdict.Verdict,
			Reason:         verdict.Reason,
		},
	})
}

// Close half-closes the send side of the stream; the daemon's Chat handler
// treats the resulting Recv error as the end of the approval channel.
func (s *ChatSession) Close() error {
	return s.stream.CloseSend()
}
