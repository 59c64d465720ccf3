package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/codexd/internal/auth"
)

var (
	tokenName    string
	tokenScope   string
	tokenExpires int
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
	Long: `Manage the bearer tokens accepted by the MCP endpoint.

Scopes:
  admin     Full access to every tool
  admin:ro  Read-only access`,
}

func init() {
	tokenCreateCmd.Flags().StringVar(&tokenName, "name", "", "Human-readable token name (required)")
	tokenCreateCmd.Flags().StringVar(&tokenScope, "scope", auth.ScopeAdmin, "Token scope: admin or admin:ro")
	tokenCreateCmd.Flags().IntVar(&tokenExpires, "expires-in-days", 0, "Expire the token after N days (0 never expires)")
	_ = tokenCreateCmd.MarkFlagRequired("name")

	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)
}

func openAuthStore() (*auth.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, err
	}
	return auth.NewStore(cfg.Paths.DataDir)
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !auth.ValidScope(tokenScope) {
			return fmt.Errorf("invalid scope '%s'; valid scopes: %s, %s", tokenScope, auth.ScopeAdmin, auth.ScopeAdminRO)
		}
		store, err := openAuthStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		var expires *time.Time
		if tokenExpires > 0 {
			t := time.Now().AddDate(0, 0, tokenExpires)
			expires = &t
		}

		token, secret, err := store.CreateToken(context.Background(), tokenName, tokenScope, expires)
		if err != nil {
			return fmt.Errorf("creating token: %w", err)
		}

		fmt.Println("Token created successfully!")
		fmt.Println()
		fmt.Printf("Token:    %s\n", secret)
		fmt.Printf("Token ID: %s\n", token.ID)
		fmt.Printf("Name:     %s\n", token.Name)
		fmt.Printf("Scope:    %s\n", token.Scope)
		if token.ExpiresAt != nil {
			fmt.Printf("Expires:  %s\n", token.ExpiresAt.Format("2006-01-02 15:04"))
		}
		fmt.Println()
		fmt.Println("IMPORTANT: Save this token now. It cannot be retrieved later.")
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openAuthStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		tokens, err := store.List(context.Background())
		if err != nil {
			return fmt.Errorf("listing tokens: %w", err)
		}
		if len(tokens) == 0 {
			fmt.Println("No tokens found.")
			fmt.Println()
			fmt.Println(`Create one with: codexd token create --name "My Token" --scope admin`)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tNAME\tSCOPE\tCREATED\tLAST USED\tEXPIRES")
		for _, t := range tokens {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Name, t.Scope,
				t.CreatedAt.Format("2006-01-02 15:04"),
				formatOptional(t.LastUsedAt, "never"),
				formatOptional(t.ExpiresAt, "never"),
			)
		}
		return w.Flush()
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token_id>",
	Short: "Revoke a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openAuthStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Revoke(context.Background(), args[0]); err != nil {
			return fmt.Errorf("revoking token: %w", err)
		}
		fmt.Printf("Token %s revoked.\n", args[0])
		return nil
	},
}

func formatOptional(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.Format("2006-01-02 15:04")
}
