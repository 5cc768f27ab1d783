package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"virtual-trader/internal/models"
	"virtual-trader/internal/store"
	"virtual-trader/internal/trading"
	"virtual-trader/pkg/utils"
)

func addTradeCommands(root *cobra.Command, app *App) {
	root.AddCommand(newTradeCmd(app))
	root.AddCommand(newTradesCmd(app))
}

func newTradeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Place virtual trades",
		Long: `Place virtual trades at the current quote.

Every trade needs a written thesis (--reason). Orders fill immediately:
at the current quote, or at --price for a limit order. A --sl stop-loss
price is recorded with the trade.`,
	}

	cmd.AddCommand(newOrderCmd(app, models.OrderSideBuy))
	cmd.AddCommand(newOrderCmd(app, models.OrderSideSell))

	return cmd
}

var orderShort = map[models.OrderSide]string{
	models.OrderSideBuy:  "Buy shares of a stock",
	models.OrderSideSell: "Sell shares from a holding",
}

func newOrderCmd(app *App, side models.OrderSide) *cobra.Command {
	cmd := &cobra.Command{
		Use:   strings.ToLower(string(side)) + " <symbol> <quantity>",
		Short: orderShort[side],
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx := cmd.Context()

			qty, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			userID, _ := cmd.Flags().GetString("user")
			reason, _ := cmd.Flags().GetString("reason")

			order := models.Order{
				UserID:   userID,
				Symbol:   args[0],
				Side:     side,
				Quantity: qty,
				Kind:     models.OrderKindMarket,
				Reason:   reason,
			}
			if order.LimitPrice, err = priceFlag(cmd, "price"); err != nil {
				return err
			}
			if order.StopLossPrice, err = priceFlag(cmd, "sl"); err != nil {
				return err
			}
			switch {
			case order.LimitPrice != nil:
				order.Kind = models.OrderKindLimit
			case order.StopLossPrice != nil:
				order.Kind = models.OrderKindStopLoss
			}

			svc, err := app.open(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			if _, err := svc.accounts.GetOrCreate(ctx, userID); err != nil {
				return err
			}
			res, err := svc.desk.PlaceOrder(ctx, order)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(res)
			}
			t := res.Trade
			output.Success("✓ %s %s %s @ %s", output.Side(t.Side), utils.FormatQuantity(t.Quantity), t.Symbol, utils.FormatINR(t.Price))
			output.Printf("  Total:      %s\n", utils.FormatINR(t.Total))
			if t.RealizedPL != nil {
				output.Printf("  Realized:   %s\n", output.PnL(*t.RealizedPL))
			}
			output.Printf("  Balance:    %s\n", utils.FormatINR(res.NewBalance))
			output.Dim("  Trade %s, session %s", t.ID, t.SessionDate)
			return nil
		},
	}

	userFlag(cmd)
	cmd.Flags().StringP("reason", "r", "", "trade thesis")
	cmd.Flags().String("price", "", "limit price")
	cmd.Flags().String("sl", "", "stop-loss price")
	cmd.MarkFlagRequired("reason")

	return cmd
}

func priceFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s %q", name, raw)
	}
	return &d, nil
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Trade history",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			filter, err := historyFilter(cmd)
			if err != nil {
				return err
			}

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			trades, err := svc.store.Trades().List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades")
				return nil
			}
			output.Printf("%-16s %-5s %-12s %8s %14s %16s\n", "TIME", "SIDE", "SYMBOL", "QTY", "PRICE", "REALIZED")
			for _, t := range trades {
				realized := "-"
				if t.RealizedPL != nil {
					realized = output.PnL(*t.RealizedPL)
				}
				output.Printf("%-16s %-5s %-12s %8s %14s %16s\n",
					t.CreatedAt.Local().Format("2006-01-02 15:04"),
					output.Side(t.Side),
					t.Symbol,
					utils.FormatQuantity(t.Quantity),
					utils.FormatINR(t.Price),
					realized,
				)
			}
			return nil
		},
	}
	historyFlags(listCmd)
	listCmd.Flags().Int("limit", 50, "maximum number of trades")

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export trade history as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			filter, err := historyFilter(cmd)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			path, _ := cmd.Flags().GetString("csv")
			if path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			svc, err := app.open(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := trading.ExportTradesCSV(cmd.Context(), svc.store.Trades(), filter, w)
			if err != nil {
				return err
			}
			if path != "" {
				output.Success("✓ Exported %d trades to %s", n, path)
			}
			return nil
		},
	}
	historyFlags(exportCmd)
	exportCmd.Flags().String("csv", "", "output file (default: stdout)")

	cmd.AddCommand(listCmd, exportCmd)
	return cmd
}

func historyFlags(cmd *cobra.Command) {
	userFlag(cmd)
	cmd.Flags().String("symbol", "", "filter by symbol")
	cmd.Flags().String("side", "", "filter by side (BUY or SELL)")
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD, inclusive)")
}

func historyFilter(cmd *cobra.Command) (store.TradeFilter, error) {
	userID, _ := cmd.Flags().GetString("user")
	symbol, _ := cmd.Flags().GetString("symbol")
	side, _ := cmd.Flags().GetString("side")

	f := store.TradeFilter{
		UserID: userID,
		Symbol: models.NormalizeSymbol(symbol),
		Side:   models.OrderSide(strings.ToUpper(side)),
	}
	if f.Side != "" && !f.Side.Valid() {
		return f, fmt.Errorf("invalid --side %q", side)
	}
	if cmd.Flags().Lookup("limit") != nil {
		f.Limit, _ = cmd.Flags().GetInt("limit")
	}

	from, _ := cmd.Flags().GetString("from")
	if from != "" {
		d, err := time.ParseInLocation("2006-01-02", from, utils.IndiaLocation)
		if err != nil {
			return f, fmt.Errorf("invalid --from %q", from)
		}
		f.StartDate = d
	}
	to, _ := cmd.Flags().GetString("to")
	if to != "" {
		d, err := time.ParseInLocation("2006-01-02", to, utils.IndiaLocation)
		if err != nil {
			return f, fmt.Errorf("invalid --to %q", to)
		}
		f.EndDate = d.AddDate(0, 0, 1)
	}
	return f, nil
}
