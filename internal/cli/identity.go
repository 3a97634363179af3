package cli

import (
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <source> <target>",
		Short: "Fold one player's history into another",
		Long: `Move every session of <source> to <target> and delete <source>.
Each side is a player id or a display name. Legacy rows whose name
normalizes to the same key as another player must be given by id.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/merge")
			if err != nil {
				return err
			}

			req := map[string]string{"source": args[0], "target": args[1]}
			var result MergeReport
			if err := client.Post(path, req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "List legacy player rows that need repair",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/duplicates")
			if err != nil {
				return err
			}

			var result DuplicateList
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newDedupeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Merge or rename every legacy player row",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/dedupe")
			if err != nil {
				return err
			}

			var result DedupeReport
			if err := client.Post(path, nil, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}
