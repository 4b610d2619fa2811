package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// buildReplCmd implements the interactive read-eval-print loop: read a
// line, skip empty ones, send it as a chat turn, repeat until EOF or an
// interrupt (spec.md §6 "REPL"). Grounded on the original CLI's
// rustyline-based run_repl: a banner, a prompt per line, and a clean exit
// on EOF with no retry.
func buildReplCmd(daemonBinary *string) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "neuromance REPL — empty lines are ignored, Ctrl-D to exit.")

			reader := bufio.NewReader(os.Stdin)
			for {
				fmt.Fprint(out, "> ")
				line, err := reader.ReadString('\n')
				trimmed := strings.TrimSpace(line)
				if trimmed != "" {
					session, chatErr := c.Chat(cmd.Context(), conversationID, trimmed)
					if chatErr != nil {
						fmt.Fprintf(out, "error: %v\n", chatErr)
					} else if turnErr := runChatTurn(out, session, reader); turnErr != nil {
						fmt.Fprintf(out, "error: %v\n", turnErr)
					}
				}
				if err != nil {
					if errors.Is(err, io.EOF) {
						fmt.Fprintln(out)
						return nil
					}
					return err
				}
			}
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id, bookmark name, or short hash (defaults to the active conversation)")
	return cmd
}
