package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/services/auth"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [admin-token]",
		Short: "Exchange an admin token for a session and save it",
		Long: `Exchange an admin token for a session token and save the session to the
token file. When no token argument is given it is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				fmt.Fprint(cmd.ErrOrStderr(), "Admin token: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = line
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("admin token is required")
			}

			var result SessionResult
			if err := client.Post("/api/v1/auth/login", map[string]string{"token": token}, &result); err != nil {
				return err
			}

			if err := cfg.SaveToken(result.Token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			client.SetToken(result.Token)

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the saved session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Token != "" {
				// an expired session is already gone server side
				err := client.Post("/api/v1/auth/logout", nil, nil)
				if err != nil && !IsCode(err, "UNAUTHORIZED") {
					fmt.Fprintf(cmd.ErrOrStderr(), "server logout failed: %s\n", err)
				}
			}
			if err := cfg.ClearToken(); err != nil {
				return fmt.Errorf("failed to remove token: %w", err)
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).PrintMessage("Logged out")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Admin token utilities",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a new random admin token and its hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := auth.GenerateToken()
			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			printTokenPair(cmd, token, hash)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "hash <token>",
		Short: "Hash an admin token for the server's admin.token_hashes setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashToken(args[0])
			if err != nil {
				return err
			}
			printTokenPair(cmd, "", hash)
			return nil
		},
	})

	return cmd
}

func printTokenPair(cmd *cobra.Command, token, hash string) {
	out := NewOutput(cfg.Output, cmd.OutOrStdout())
	if cfg.Output == "json" {
		out.Print(map[string]string{"token": token, "hash": hash})
		return
	}
	if token != "" {
		out.PrintMessage("Token: " + token)
	}
	out.PrintMessage("Hash:  " + hash)
}
