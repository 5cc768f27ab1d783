package cli

import (
	"time"

	"github.com/spf13/cobra"

	"virtual-trader/internal/auth"
)

func newTokenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "API access tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed token for a user",
		Long: `Issue an HS256 token for the REST API and websocket.

Pass it as "Authorization: Bearer <token>" or, for the websocket, as the
token query parameter.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := app.Config
			if err := cfg.RequireSecret(); err != nil {
				return err
			}
			userID, _ := cmd.Flags().GetString("user")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}

			token, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl).Issue(userID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"userId":    userID,
					"token":     token,
					"expiresAt": time.Now().Add(ttl).UTC().Format(time.RFC3339),
				})
			}
			output.Println(token)
			return nil
		},
	}
	userFlag(issueCmd)
	issueCmd.Flags().Duration("ttl", 0, "token lifetime (default: auth.token_ttl)")

	cmd.AddCommand(issueCmd)
	return cmd
}
