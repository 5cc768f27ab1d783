package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"virtual-trader/internal/models"
	"virtual-trader/pkg/utils"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer   io.Writer
	jsonMode bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

// NewOutput creates a new Output instance.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	o := &Output{
		writer:   cmd.OutOrStdout(),
		jsonMode: jsonMode,
		green:    color.New(color.FgGreen),
		red:      color.New(color.FgRed),
		yellow:   color.New(color.FgYellow),
		cyan:     color.New(color.FgCyan),
		bold:     color.New(color.Bold),
		dim:      color.New(color.Faint),
	}
	if jsonMode {
		for _, c := range []*color.Color{o.green, o.red, o.yellow, o.cyan, o.bold, o.dim} {
			c.DisableColor()
		}
	}
	return o
}

// IsJSON returns true if JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.green.Fprintf(o.writer, format+"\n", args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.red.Fprintf(o.writer, format+"\n", args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.yellow.Fprintf(o.writer, format+"\n", args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.cyan.Fprintf(o.writer, format+"\n", args...)
}

// Bold prints a bold message.
func (o *Output) Bold(format string, args ...interface{}) {
	o.bold.Fprintf(o.writer, format+"\n", args...)
}

// Dim prints a dimmed message.
func (o *Output) Dim(format string, args ...interface{}) {
	o.dim.Fprintf(o.writer, format+"\n", args...)
}

// PnL returns a signed, coloured rupee amount.
func (o *Output) PnL(v decimal.Decimal) string {
	s := utils.FormatPnL(v)
	switch {
	case v.IsPositive():
		return o.green.Sprint(s)
	case v.IsNegative():
		return o.red.Sprint(s)
	}
	return s
}

// Percent returns a signed, coloured percentage.
func (o *Output) Percent(v decimal.Decimal) string {
	s := utils.FormatPercent(v)
	switch {
	case v.IsPositive():
		return o.green.Sprint(s)
	case v.IsNegative():
		return o.red.Sprint(s)
	}
	return s
}

// Side colours an order side.
func (o *Output) Side(side models.OrderSide) string {
	if side == models.OrderSideBuy {
		return o.green.Sprint(side)
	}
	return o.red.Sprint(side)
}

// Level colours a trading level.
func (o *Output) Level(level models.Level) string {
	switch level {
	case models.LevelExpert:
		return o.bold.Sprint(o.green.Sprint(level))
	case models.LevelAdvanced:
		return o.green.Sprint(level)
	case models.LevelIntermediate:
		return o.cyan.Sprint(level)
	}
	return string(level)
}

// MarketStatus colours a market status.
func (o *Output) MarketStatus(status models.MarketStatus) string {
	switch status {
	case models.MarketOpen:
		return o.green.Sprint("● OPEN")
	case models.MarketPreOpen:
		return o.yellow.Sprint("● PRE-OPEN")
	}
	return o.red.Sprint("● CLOSED")
}
