package cli

import (
	"github.com/spf13/cobra"

	"virtual-trader/internal/leveling"
)

func newLevelsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Trading level evaluation",
	}

	evalCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Re-evaluate trading levels",
		Long: `Re-evaluate trading levels from closed trade history.

With --user only that account is evaluated; otherwise every user with a
closed trade is. Levels only ever move up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, _ := cmd.Flags().GetString("user")

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			if userID != "" {
				level, err := svc.evaluator.EvaluateUser(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(map[string]string{"userId": userID, "level": string(level)})
				}
				output.Printf("%s: %s\n", userID, output.Level(level))
				return nil
			}

			res, err := svc.levels.Run(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			showBatch(output, res)
			return nil
		},
	}
	evalCmd.Flags().StringP("user", "u", "", "evaluate a single user")

	cmd.AddCommand(evalCmd)
	return cmd
}

func showBatch(output *Output, res leveling.BatchResult) {
	output.Success("✓ Evaluated %d users", res.Processed)
	output.Printf("  Upgraded: %d\n", res.Upgraded)
	if res.Failed > 0 {
		output.Warning("  Failed:   %d", res.Failed)
	}
	output.Dim("  Took %s", res.Duration)
}
