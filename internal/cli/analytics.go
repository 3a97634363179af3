package cli

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newLeaderboardCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank players by playtime since the wipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/leaderboard")
			if err != nil {
				return err
			}
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}

			var result []LeaderboardEntry
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of entries (default: server default)")

	return cmd
}

func newEconomyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "economy",
		Short: "Show the most traded items since the wipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/economy")
			if err != nil {
				return err
			}

			var result EconomyReport
			if err := client.Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newShopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shop <item>",
		Short: "Search recent vending machine listings for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := groupPath("/listings")
			if err != nil {
				return err
			}

			var result MarketSearch
			if err := client.Get(path+"?item="+url.QueryEscape(args[0]), &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newTradeCmd() *cobra.Command {
	var buyer, seller, item, costItem, at string
	var quantity, cost int

	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Record a vending machine trade",
		RunE: func(cmd *cobra.Command, args []string) error {
			if item == "" || costItem == "" {
				return fmt.Errorf("--item and --cost-item are required")
			}
			path, err := groupPath("/trades")
			if err != nil {
				return err
			}

			req := map[string]any{
				"buyer":       buyer,
				"seller":      seller,
				"item":        item,
				"quantity":    quantity,
				"cost_item":   costItem,
				"cost_amount": cost,
			}
			if at != "" {
				ts, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				req["at"] = ts
			}

			var result Trade
			if err := client.Post(path, req, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&buyer, "buyer", "", "Buying player")
	cmd.Flags().StringVar(&seller, "seller", "", "Selling player or shop")
	cmd.Flags().StringVar(&item, "item", "", "Item sold (required)")
	cmd.Flags().IntVar(&quantity, "quantity", 1, "Quantity sold")
	cmd.Flags().StringVar(&costItem, "cost-item", "", "Currency item (required)")
	cmd.Flags().IntVar(&cost, "cost", 1, "Currency amount")
	cmd.Flags().StringVar(&at, "at", "", "Time of the trade (RFC3339, default now)")

	return cmd
}
