package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"virtual-trader/internal/models"
	"virtual-trader/internal/quotes"
	"virtual-trader/pkg/utils"
)

func addQuoteCommands(root *cobra.Command, app *App) {
	root.AddCommand(newQuotesCmd(app))
	root.AddCommand(newMarketCmd())
}

func newQuotesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quotes",
		Short: "Manage stock quotes",
		Long: `Manage the stock quotes trades execute against.

With quotes.source = "store" the engine prices trades from the quote table,
which can be filled from a CSV file or set per symbol.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <symbol>",
		Short: "Show the current quote for a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			q, err := svc.quotes.Quote(cmd.Context(), models.NormalizeSymbol(args[0]))
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(q)
			}
			output.Bold("%s  %s", q.Symbol, q.Name)
			output.Printf("  LTP:     %s\n", utils.FormatINR(q.Price))
			if !q.Change.IsZero() {
				output.Printf("  Change:  %s (%s)\n", output.PnL(q.Change), output.Percent(q.ChangePercent))
			}
			output.Dim("  Updated %s", q.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import quotes from a CSV file",
		Long: `Import quotes from a CSV file with a header row.

Required columns are symbol and price. Optional columns: name, open, high,
low, close, volume. Rows that fail to parse are skipped and reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := quotes.ImportCSV(cmd.Context(), f, svc.store.Quotes())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(res)
			}
			output.Success("✓ Imported %d quotes", res.Imported)
			for _, s := range res.Skipped {
				output.Warning("  skipped %s", s)
			}
			return nil
		},
	})

	setCmd := &cobra.Command{
		Use:   "set <symbol> <price>",
		Short: "Set the quote for a symbol",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			price, err := decimal.NewFromString(args[1])
			if err != nil || !price.IsPositive() {
				return fmt.Errorf("invalid price %q", args[1])
			}
			name, _ := cmd.Flags().GetString("name")

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			q := &models.Quote{
				Symbol:    models.NormalizeSymbol(args[0]),
				Name:      name,
				Price:     price,
				UpdatedAt: time.Now().UTC(),
			}
			if err := svc.store.Quotes().SaveQuote(cmd.Context(), q); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(q)
			}
			output.Success("✓ %s = %s", q.Symbol, utils.FormatINR(q.Price))
			return nil
		},
	}
	setCmd.Flags().String("name", "", "company name")
	cmd.AddCommand(setCmd)

	return cmd
}

func newMarketCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "market",
		Short:       "Show NSE market status",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			status := utils.GetMarketStatus()
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"status":  string(status),
					"message": utils.MarketStatusMessage(status),
				})
			}
			output.Printf("%s  %s\n", output.MarketStatus(status), utils.MarketStatusMessage(status))
			return nil
		},
	}
}
