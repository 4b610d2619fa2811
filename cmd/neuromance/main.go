// Command neuromance is the CLI client for neuromanced: it connects over
// the daemon's Unix-domain socket (auto-spawning the daemon on first use,
// internal/client), issues one RPC per invocation, and exits non-zero on
// any error (spec.md §6 "CLI surface"). Each build<Name>Cmd, modeled on
// cmd/nexus's commands, attaches flags and does its work inside the RunE
// closure it wires.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neuromance/neuromance-go/internal/config"
)

// Version is the CLI's build version, overridden at build time with
// -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var daemonBinary string

	root := &cobra.Command{
		Use:          "neuromance",
		Short:        "Talk to a local LLM conversation daemon",
		Version:      Version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&daemonBinary, "daemon-binary", "neuromanced",
		"Daemon executable to auto-spawn when none is running (must be in PATH, or an absolute path)")

	root.AddCommand(
		buildNewCmd(&daemonBinary),
		buildSendCmd(&daemonBinary),
		buildReplCmd(&daemonBinary),
		buildMessagesCmd(&daemonBinary),
		buildConversationsCmd(&daemonBinary),
		buildBookmarkCmd(&daemonBinary),
		buildDeleteCmd(&daemonBinary),
		buildModelCmd(&daemonBinary),
		buildStatusCmd(&daemonBinary),
		buildShutdownCmd(&daemonBinary),
		buildDoctorCmd(),
	)
	return root
}

func defaultConfigPathFlag(cmd *cobra.Command, configPath *string) {
	cmd.Flags().StringVarP(configPath, "config", "c", config.DefaultDaemonConfigPath(), "Path to YAML daemon configuration file")
}
