package main

import (
	"bufio"
	"os"

	"github.com/spf13/cobra"
)

func buildSendCmd(daemonBinary *string) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the assistant's reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			session, err := c.Chat(cmd.Context(), conversationID, args[0])
			if err != nil {
				return err
			}
			return runChatTurn(cmd.OutOrStdout(), session, bufio.NewReader(os.Stdin))
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id, bookmark name, or short hash (defaults to the active conversation)")
	return cmd
}
