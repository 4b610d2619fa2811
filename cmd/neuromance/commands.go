package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/neuromance/neuromance-go/internal/daemonrpc"
)

func buildNewCmd(daemonBinary *string) *cobra.Command {
	var model, systemMessage string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Start a new conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.CreateConversation(cmd.Context(), &daemonrpc.CreateConversationRequest{
				Model:         model,
				SystemMessage: systemMessage,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created conversation %s (model: %s)\n", resp.ConversationID, resp.Model)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "Model nickname (defaults to the daemon's active model)")
	cmd.Flags().StringVar(&systemMessage, "system", "", "System message for the new conversation")
	return cmd
}

func buildMessagesCmd(daemonBinary *string) *cobra.Command {
	var conversationID string
	var limit int
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List messages in a conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.GetMessages(cmd.Context(), &daemonrpc.GetMessagesRequest{
				ConversationID: conversationID,
				Limit:          limit,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Conversation %s (%d of %d messages)\n", resp.ConversationID, len(resp.Messages), resp.TotalCount)
			for _, m := range resp.Messages {
				fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id, bookmark name, or short hash (defaults to the active conversation)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of messages to show (0 = all)")
	return cmd
}

func buildConversationsCmd(daemonBinary *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.ListConversations(cmd.Context(), &daemonrpc.ListConversationsRequest{Limit: limit})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(resp.Conversations) == 0 {
				fmt.Fprintln(out, "No conversations.")
				return nil
			}
			for _, cv := range resp.Conversations {
				title := cv.Title
				if title == "" {
					title = "(untitled)"
				}
				bookmarks := ""
				if len(cv.Bookmarks) > 0 {
					bookmarks = fmt.Sprintf(" [%s]", strings.Join(cv.Bookmarks, ", "))
				}
				fmt.Fprintf(out, "%s  %-20s  %s  %d msgs%s\n", cv.ConversationID, title, cv.Model, cv.MessageCount, bookmarks)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of conversations to show (0 = all)")
	return cmd
}

func buildBookmarkCmd(daemonBinary *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Manage conversation bookmarks",
	}
	cmd.AddCommand(buildBookmarkSetCmd(daemonBinary), buildBookmarkRemoveCmd(daemonBinary))
	return cmd
}

func buildBookmarkSetCmd(daemonBinary *string) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Point a bookmark name at a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.SetBookmark(cmd.Context(), &daemonrpc.SetBookmarkRequest{
				Name:           args[0],
				ConversationID: conversationID,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bookmark %q set.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id (defaults to the active conversation)")
	return cmd
}

func buildBookmarkRemoveCmd(daemonBinary *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.RemoveBookmark(cmd.Context(), &daemonrpc.RemoveBookmarkRequest{Name: args[0]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bookmark %q removed.\n", args[0])
			return nil
		},
	}
	return cmd
}

func buildDeleteCmd(daemonBinary *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <conversation>",
		Short: "Delete a conversation and every bookmark pointing at it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.DeleteConversation(cmd.Context(), &daemonrpc.DeleteConversationRequest{ConversationID: args[0]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
			return nil
		},
	}
	return cmd
}

func buildModelCmd(daemonBinary *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "List or switch model profiles",
	}
	cmd.AddCommand(buildModelListCmd(daemonBinary), buildModelSwitchCmd(daemonBinary))
	return cmd
}

func buildModelListCmd(daemonBinary *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured model profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.ListModels(cmd.Context(), &daemonrpc.ListModelsRequest{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range resp.Models {
				marker := " "
				if m.Active {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-12s %s/%s\n", marker, m.Nickname, m.Provider, m.Model)
			}
			return nil
		},
	}
	return cmd
}

func buildModelSwitchCmd(daemonBinary *string) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "switch <nickname>",
		Short: "Switch a conversation's model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.SwitchModel(cmd.Context(), &daemonrpc.SwitchModelRequest{
				ConversationID: conversationID,
				ModelNickname:  args[0],
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to model %q.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation id (defaults to the active conversation)")
	return cmd
}

func buildStatusCmd(daemonBinary *string) *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if !detailed {
				resp, err := c.GetStatus(cmd.Context())
				if err != nil {
					return err
				}
				printStatus(out, resp)
				return nil
			}

			resp, err := c.GetDetailedStatus(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(out, &resp.StatusResponse)
			fmt.Fprintf(out, "Cached clients:    %d\n", len(resp.CachedClients))
			fmt.Fprintf(out, "Pending approvals: %d\n", resp.PendingApprovals)
			fmt.Fprintf(out, "Idle for:          %ds\n", resp.IdleSeconds)
			return nil
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show detailed status")
	return cmd
}

func printStatus(out io.Writer, resp *daemonrpc.StatusResponse) {
	fmt.Fprintf(out, "Version:            %s\n", resp.Version)
	fmt.Fprintf(out, "Active conversation: %s\n", resp.ActiveConversationID)
	fmt.Fprintf(out, "Conversations:      %d\n", resp.ConversationCount)
	fmt.Fprintf(out, "Uptime:             %ds\n", resp.UptimeSeconds)
}

func buildShutdownCmd(daemonBinary *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Ask the daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(cmd.Context(), *daemonBinary)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.Shutdown(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Shutdown requested.")
			return nil
		},
	}
	return cmd
}
