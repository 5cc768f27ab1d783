// Package advisor writes short coaching notes for executed trades using a
// language model.
package advisor

import (
	"context"
	"fmt"
	"strings"

	"virtual-trader/internal/models"
	"virtual-trader/pkg/utils"
)

const systemPrompt = `You are a trading coach for a paper-trading platform on the Indian stock market (NSE).
A student has just executed a trade and explained their reasoning.
Reply with at most three sentences: one observation about the reasoning, one risk they may have missed,
and one concrete habit to practise. Do not recommend buying or selling any security. Plain text only.`

const maxAdviceRunes = 600

// Advisor annotates trades.
type Advisor struct {
	llm LLMClient
}

// New creates an advisor backed by llm.
func New(llm LLMClient) *Advisor {
	return &Advisor{llm: llm}
}

// Annotate returns a short note on trade. The caller bounds the call with
// ctx.
func (a *Advisor) Annotate(ctx context.Context, trade *models.Trade) (string, error) {
	out, err := a.llm.CompleteWithSystem(ctx, systemPrompt, tradePrompt(trade))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("empty advisory response")
	}
	if r := []rune(out); len(r) > maxAdviceRunes {
		out = string(r[:maxAdviceRunes])
	}
	return out, nil
}

func tradePrompt(t *models.Trade) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Trade: %s %s x %s at %s (%s order)\n",
		t.Side, utils.FormatQuantity(t.Quantity), t.Symbol, utils.FormatINR(t.Price), t.Kind)
	fmt.Fprintf(&b, "Total: %s\n", utils.FormatINR(t.Total))
	if t.RealizedPL != nil {
		fmt.Fprintf(&b, "Realized P&L on this sale: %s\n", utils.FormatPnL(*t.RealizedPL))
	}
	if t.StopLossPrice != nil {
		fmt.Fprintf(&b, "Stop loss: %s\n", utils.FormatINR(*t.StopLossPrice))
	}
	fmt.Fprintf(&b, "Student's reasoning: %s\n", t.Reason)
	return b.String()
}
