package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"virtual-trader/internal/models"
	"virtual-trader/pkg/utils"
)

func addAccountCommands(root *cobra.Command, app *App) {
	root.AddCommand(newAccountCmd(app))
	root.AddCommand(newPortfolioCmd(app))
	root.AddCommand(newStatsCmd(app))
}

func userFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "user ID")
	cmd.MarkFlagRequired("user")
}

func balanceArg(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q: %w", s, err)
	}
	return d, nil
}

func newAccountCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Virtual account management",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a virtual account",
		Long:  "Create a virtual account. Without --balance the configured default is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, _ := cmd.Flags().GetString("user")
			raw, _ := cmd.Flags().GetString("balance")
			balance, err := balanceArg(raw)
			if err != nil {
				return err
			}

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			account, err := svc.accounts.Create(cmd.Context(), userID, balance)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(account)
			}
			output.Success("✓ Account created for %s", account.UserID)
			output.Printf("  Balance: %s\n", utils.FormatINR(account.Balance))
			return nil
		},
	}
	userFlag(createCmd)
	createCmd.Flags().String("balance", "", "starting balance in rupees")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset an account to a fresh balance",
		Long:  "Reset an account. Holdings are cleared, statistics zeroed and the trade history kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, _ := cmd.Flags().GetString("user")
			raw, _ := cmd.Flags().GetString("balance")
			balance, err := balanceArg(raw)
			if err != nil {
				return err
			}

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			account, err := svc.accounts.Reset(cmd.Context(), userID, balance)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(account)
			}
			output.Success("✓ Account reset for %s", account.UserID)
			output.Printf("  Balance: %s\n", utils.FormatINR(account.Balance))
			return nil
		},
	}
	userFlag(resetCmd)
	resetCmd.Flags().String("balance", "", "new balance in rupees")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show account details",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, _ := cmd.Flags().GetString("user")

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			account, err := svc.accounts.Get(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(account)
			}
			showAccount(output, account)
			return nil
		},
	}
	userFlag(showCmd)

	cmd.AddCommand(createCmd, resetCmd, showCmd)
	return cmd
}

func showAccount(output *Output, a *models.Account) {
	output.Bold("Account: %s", a.UserID)
	output.Printf("  Level:            %s\n", output.Level(a.Level))
	output.Printf("  Balance:          %s\n", utils.FormatINR(a.Balance))
	output.Printf("  Initial balance:  %s\n", utils.FormatINR(a.InitialBalance))
	output.Printf("  Realized P&L:     %s\n", output.PnL(a.RealizedPL))
	output.Printf("  Trades:           %d (%d closed, %d profitable)\n", a.TotalTrades, a.ClosedTrades, a.ProfitableTrades)
	output.Printf("  Max drawdown:     %s\n", a.MaxDrawdown.StringFixed(2)+"%")
	output.Dim("  Created %s", a.CreatedAt.Format("2006-01-02 15:04"))
}

func newPortfolioCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Show holdings valued at current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, _ := cmd.Flags().GetString("user")

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			portfolio, err := svc.valuation.GetPortfolio(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(portfolio)
			}
			showPortfolio(output, userID, portfolio)
			return nil
		},
	}
	userFlag(cmd)
	return cmd
}

func showPortfolio(output *Output, userID string, p *models.Portfolio) {
	output.Bold("Portfolio: %s", userID)
	output.Println()
	if len(p.Holdings) == 0 {
		output.Dim("  No holdings")
	} else {
		output.Printf("  %-12s %8s %14s %14s %16s %9s\n", "SYMBOL", "QTY", "AVG", "LTP", "P&L", "P&L%")
		for _, h := range p.Holdings {
			output.Printf("  %-12s %8s %14s %14s %16s %9s\n",
				h.Symbol,
				utils.FormatQuantity(h.Quantity),
				utils.FormatINR(h.AveragePrice),
				utils.FormatINR(h.CurrentPrice),
				output.PnL(h.UnrealizedPL),
				output.Percent(h.UnrealizedPLPercent),
			)
		}
	}
	output.Println()
	s := p.Summary
	output.Printf("  Invested:       %s\n", utils.FormatINR(s.TotalInvested))
	output.Printf("  Current value:  %s\n", utils.FormatINR(s.CurrentValue))
	output.Printf("  Unrealized:     %s (%s)\n", output.PnL(s.TotalPL), output.Percent(s.TotalPLPercent))
	output.Printf("  Cash:           %s\n", utils.FormatINR(p.AvailableBalance))
	output.Bold("  Total value:    %s", utils.FormatINR(p.TotalValue))
}

func newStatsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show trading statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			userID, _ := cmd.Flags().GetString("user")

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			stats, err := svc.stats.GetStats(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(stats)
			}
			output.Bold("Statistics: %s", stats.UserID)
			output.Printf("  Level:          %s\n", output.Level(stats.Level))
			output.Printf("  Balance:        %s\n", utils.FormatINR(stats.Balance))
			output.Printf("  Trades:         %d (%d profitable)\n", stats.TotalTrades, stats.ProfitableTrades)
			output.Printf("  Win rate:       %s%%\n", stats.WinRate.StringFixed(2))
			output.Printf("  Realized:       %s\n", output.PnL(stats.RealizedPL))
			output.Printf("  Unrealized:     %s\n", output.PnL(stats.UnrealizedPL))
			output.Printf("  Total P&L:      %s\n", output.PnL(stats.TotalProfitLoss))
			output.Printf("  ROI:            %s\n", output.Percent(stats.ROI))
			output.Printf("  Best trade:     %s\n", output.PnL(stats.BestTrade))
			output.Printf("  Worst trade:    %s\n", output.PnL(stats.WorstTrade))
			output.Printf("  Max drawdown:   %s\n", stats.MaxDrawdown.StringFixed(2)+"%")
			return nil
		},
	}
	userFlag(cmd)
	return cmd
}
