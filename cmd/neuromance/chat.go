package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/neuromance/neuromance-go/internal/client"
	"github.com/neuromance/neuromance-go/internal/daemonrpc"
	"github.com/neuromance/neuromance-go/internal/domain"
)

// runChatTurn drives one ChatSession to completion, printing streamed
// content as it arrives and answering any tool-approval request with a
// y/n prompt read from stdin. Shared by the send and repl commands.
func runChatTurn(out io.Writer, session *client.ChatSession, reader *bufio.Reader) error {
	defer session.Close()

	printedDelta := false
	for {
		event, err := session.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch event.Kind {
		case daemonrpc.ChatEventStreamChunk:
			fmt.Fprint(out, event.ContentDelta)
			printedDelta = true

		case daemonrpc.ChatEventToolResult:
			if printedDelta {
				fmt.Fprintln(out)
				printedDelta = false
			}
			status := "ok"
			if !event.ToolSuccess {
				status = "failed"
			}
			fmt.Fprintf(out, "[tool %s: %s] %s\n", event.ToolName, status, event.ToolResult)

		case daemonrpc.ChatEventUsage:
			if event.Usage != nil {
				fmt.Fprintf(out, "\n(tokens: %d prompt, %d completion, %d total)\n",
					event.Usage.PromptTokens, event.Usage.CompletionTokens, event.Usage.TotalTokens)
			}

		case daemonrpc.ChatEventToolApprovalRequest:
			if printedDelta {
				fmt.Fprintln(out)
				printedDelta = false
			}
			verdict := promptApproval(out, reader, event)
			if err := session.Approve(event.ConversationID, toolCallID(event), verdict); err != nil {
				return err
			}

		case daemonrpc.ChatEventMessageCompleted:
			if printedDelta {
				fmt.Fprintln(out)
			}
			return nil

		case daemonrpc.ChatEventError:
			if printedDelta {
				fmt.Fprintln(out)
			}
			return fmt.Errorf("%s: %s", event.ErrorCode, event.ErrorMessage)
		}
	}
}

func toolCallID(event *daemonrpc.ChatEvent) string {
	if event.ToolCall == nil {
		return ""
	}
	return event.ToolCall.ID
}

// promptApproval asks the operator whether to run the tool a
// ToolApprovalRequest event names, mirroring the teacher's promptBool/
// promptString (y/n, default "n", free-text denial reason).
func promptApproval(out io.Writer, reader *bufio.Reader, event *daemonrpc.ChatEvent) domain.Approval {
	name := event.ToolName
	if event.ToolCall != nil {
		name = event.ToolCall.Function.Name
	}
	fmt.Fprintf(out, "Approve tool call %q? (y/n) [n]: ", name)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "y" || answer == "yes" {
		return domain.Approved()
	}

	fmt.Fprint(out, "Reason (optional): ")
	reason, _ := reader.ReadString('\n')
	return domain.Denied(strings.TrimSpace(reason))
}
