package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newWipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Wipe epoch commands",
		Long: `The wipe epoch bounds session history, predictions and stats. Data
from before it stays stored but is excluded by default.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the group's wipe epoch",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/wipe")
			if err != nil {
				return err
			}

			var result WipeResult
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	})

	var at string
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Mark a server wipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/wipe")
			if err != nil {
				return err
			}

			req := map[string]any{}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				req["at"] = ts
			}

			var result WipeResult
			if err := client.Put(path, req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
	setCmd.Flags().StringVar(&at, "at", "", "Wipe time (RFC3339, default now)")
	cmd.AddCommand(setCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the wipe epoch and analyse the full history",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/wipe")
			if err != nil {
				return err
			}

			if err := client.Delete(path); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage("Wipe epoch cleared")
			return nil
		},
	})

	return cmd
}

func newPollTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll-target [server-id]",
		Short: "Set the server whose player list is polled; no argument disables polling",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/poll-target")
			if err != nil {
				return err
			}

			target := ""
			if len(args) == 1 {
				target = args[0]
			}

			var result GroupConfig
			if err := client.Put(path, map[string]string{"target": target}, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Show the poll target server as BattleMetrics reports it",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/server")
			if err != nil {
				return err
			}

			var result ServerInfo
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation cycle against the poll target now",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/reconcile")
			if err != nil {
				return err
			}

			var result ReconcileResult
			if err := client.Post(path, nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every player, session and trade of the group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to reset without --yes")
			}
			path, err := groupPath("/reset")
			if err != nil {
				return err
			}

			var result ResetReport
			if err := client.Post(path, nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm the reset")

	return cmd
}

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Smart device commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List paired devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/devices")
			if err != nil {
				return err
			}

			var result DeviceList
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	})

	var kind string
	addCmd := &cobra.Command{
		Use:   "add <entity-id> <name>",
		Short: "Pair a smart device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/devices")
			if err != nil {
				return err
			}

			req := map[string]string{"entity_id": args[0], "name": args[1], "kind": kind}
			var result Device
			if err := client.Post(path, req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(DeviceList{Devices: []Device{result}})
			return nil
		},
	}
	addCmd.Flags().StringVar(&kind, "kind", "alarm", "Device kind: alarm, switch, storage")
	cmd.AddCommand(addCmd)

	var off bool
	triggerCmd := &cobra.Command{
		Use:   "trigger <entity-id>",
		Short: "Report a device state change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/devices/events")
			if err != nil {
				return err
			}

			req := map[string]any{"entity_id": args[0], "value": !off}
			var result TriggerResult
			if err := client.Post(path, req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
	triggerCmd.Flags().BoolVar(&off, "off", false, "Report the device as inactive")
	cmd.AddCommand(triggerCmd)

	return cmd
}
