package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a trade as an Org-mode block: facts in a
// PROPERTIES drawer, then empty review headings.
func FormatTradeOrg(t TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** Trade: %s %s (%s)\n", t.Symbol, strings.ToUpper(t.Side), shortID(t.TradeID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":RUN_ID: %s\n", t.RunID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":SIZE: %.2f\n", t.Size)
	fmt.Fprintf(&b, ":LEVERAGE: %.1f\n", t.Leverage)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.5f\n", t.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %.5f\n", t.ExitPrice)
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.OpenTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.CloseTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":REALIZED_PL: %.4f\n", t.RealizedPL)
	fmt.Fprintf(&b, ":FEE: %.4f\n", t.Fee)
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n\n")
	b.WriteString("**** Thesis\n- \n\n")
	b.WriteString("**** Review\n- \n")
	return b.String()
}

// FormatTradesOrg renders trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	blocks := make([]string, len(trades))
	for i, t := range trades {
		blocks[i] = FormatTradeOrg(t)
	}
	return strings.Join(blocks, "\n")
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
