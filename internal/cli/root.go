package cli

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfg    *Config
	client *Client
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "trackerctl",
		Short: "CLI tool for the player presence tracker API",
		Long: `trackerctl talks to the presence tracker JSON API.

It covers player presence and session history, return predictions, playtime
stats, identity merges, wipe and poll-target administration, smart devices,
and live event streaming. Administrative commands need a token: run
"trackerctl login" once or pass --token.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			// Create HTTP client
			client = NewClient(cfg.ServerURL, cfg.Token)
			if cfg.Verbose {
				client.SetTrace(cmd.ErrOrStderr())
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: TRACKERCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Admin token or session token (env: TRACKERCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: TRACKERCTL_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Group, "group", "g", cfg.Group, "Group id (env: TRACKERCTL_GROUP)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newPlayersCmd())
	rootCmd.AddCommand(newLeaderboardCmd())
	rootCmd.AddCommand(newEconomyCmd())
	rootCmd.AddCommand(newShopCmd())
	rootCmd.AddCommand(newTradeCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newDuplicatesCmd())
	rootCmd.AddCommand(newDedupeCmd())
	rootCmd.AddCommand(newWipeCmd())
	rootCmd.AddCommand(newPollTargetCmd())
	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newEventsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// groupPath builds /api/v1/groups/{group}/... for the selected group
func groupPath(suffix string) (string, error) {
	if cfg.Group == "" {
		return "", fmt.Errorf("--group is required")
	}
	return "/api/v1/groups/" + url.PathEscape(cfg.Group) + suffix, nil
}

// playerPath builds a per-player path; ref is a player id or name
func playerPath(ref, suffix string) (string, error) {
	return groupPath("/players/" + url.PathEscape(ref) + suffix)
}
