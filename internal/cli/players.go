package cli

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

func newPlayersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Player presence commands",
	}

	cmd.AddCommand(newPlayersListCmd())
	cmd.AddCommand(newPlayersAddCmd())
	cmd.AddCommand(newPlayersOnlineCmd(true))
	cmd.AddCommand(newPlayersOnlineCmd(false))
	cmd.AddCommand(newPlayersSessionsCmd())
	cmd.AddCommand(newPlayersPredictCmd())
	cmd.AddCommand(newPlayersStatsCmd())

	return cmd
}

func newPlayersListCmd() *cobra.Command {
	var onlineOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the players of the group",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/players")
			if err != nil {
				return err
			}

			var result PlayerList
			if err := client.Get(path, &result); err != nil {
				return err
			}

			if onlineOnly {
				online := result.Players[:0]
				for _, p := range result.Players {
					if p.Online {
						online = append(online, p)
					}
				}
				result.Players = online
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&onlineOnly, "online", false, "Only show online players")

	return cmd
}

func newPlayersAddCmd() *cobra.Command {
	var teammate bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Pre-register a player without changing presence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/players")
			if err != nil {
				return err
			}

			req := map[string]any{"name": args[0]}
			if cmd.Flags().Changed("teammate") {
				req["teammate"] = teammate
			}

			var result Player
			if err := client.Post(path, req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&teammate, "teammate", false, "Mark as a member of the tracking team")

	return cmd
}

// newPlayersOnlineCmd builds the "online" and "offline" transition commands
func newPlayersOnlineCmd(online bool) *cobra.Command {
	var at string

	use, short := "offline <name>", "Record that a player went offline"
	if online {
		use, short = "online <name>", "Record that a player came online"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/transitions")
			if err != nil {
				return err
			}

			req := map[string]any{"name": args[0], "online": online}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				req["at"] = ts
			}

			var result TransitionResult
			if err := client.Post(path, req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Time of the change (RFC3339, default now)")

	return cmd
}

func newPlayersSessionsCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "sessions <player>",
		Short: "Show a player's sessions since the wipe epoch",
		Long: `Show a player's sessions. By default only sessions since the group's wipe
epoch are listed; pass --since all for the full history or an RFC3339 time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := playerPath(args[0], "/sessions")
			if err != nil {
				return err
			}
			if since != "" {
				path += "?since=" + url.QueryEscape(since)
			}

			var result SessionList
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", `Lower bound: RFC3339 time or "all"`)

	return cmd
}

func newPlayersPredictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict <player>",
		Short: "Predict when a player will next come online",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := playerPath(args[0], "/prediction")
			if err != nil {
				return err
			}

			var result PredictionResult
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newPlayersStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <player>",
		Short: "Show a player's playtime profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := playerPath(args[0], "/stats")
			if err != nil {
				return err
			}

			var result PlaytimeStats
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}
