package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/neuromance/neuromance-go/internal/config"
	"github.com/neuromance/neuromance-go/internal/doctor"
)

// buildDoctorCmd probes every configured model provider's reachability
// directly, without going through the daemon, so it works whether or not a
// daemon is running.
func buildDoctorCmd() *cobra.Command {
	var configPath string
	var backup bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configured model providers for reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			if backup {
				backupPath, err := doctor.BackupConfig(configPath)
				if err != nil {
					return fmt.Errorf("back up config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backed up config to %s\n", backupPath)
			}

			cfg, err := config.LoadDaemonConfig(configPath)
			if err != nil {
				return err
			}

			results := doctor.ProbeModels(cmd.Context(), cfg, http.DefaultClient)
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No model profiles configured.")
				return nil
			}

			unreachable := 0
			for _, r := range results {
				if r.Reachable {
					fmt.Fprintf(out, "OK    %-12s %-10s %s\n", r.Nickname, r.Provider, r.Latency)
					continue
				}
				unreachable++
				fmt.Fprintf(out, "FAIL  %-12s %-10s %s\n", r.Nickname, r.Provider, r.Error)
			}
			if unreachable > 0 {
				return fmt.Errorf("%d of %d model providers unreachable", unreachable, len(results))
			}
			return nil
		},
	}
	defaultConfigPathFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&backup, "backup", false, "Back up the config file before checking it")
	return cmd
}
