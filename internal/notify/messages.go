package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/pairbot/internal/domain"
)

// WindowOpened formats the alert sent when both legs are first bought.
func WindowOpened(p domain.PairPosition) (title, message string) {
	title = "Window opened: " + p.Slug
	message = fmt.Sprintf("up %.2f @ %.4f\ndown %.2f @ %.4f\npair cost %.4f",
		p.Up.Amount, p.Up.AvgPrice(), p.Down.Amount, p.Down.AvgPrice(), p.PairCost)
	return title, message
}

// TakeProfit formats the alert sent when trading stops early.
func TakeProfit(p domain.PairPosition, target float64) (title, message string) {
	title = "Take profit: " + p.Slug
	message = fmt.Sprintf("guaranteed profit %.4f reached target %.4f\nspent %.4f",
		p.Profit, target, p.Spent)
	return title, message
}

// WindowSettled formats the settlement summary.
func WindowSettled(r domain.WindowResult) (title, message string) {
	mode := "live"
	if r.Paper {
		mode = "paper"
	}
	title = fmt.Sprintf("Window settled (%s): %s", mode, r.Slug)

	var b strings.Builder
	fmt.Fprintf(&b, "outcome: %s\n", r.Outcome)
	fmt.Fprintf(&b, "up %.2f / down %.2f, spent %.4f\n",
		r.Position.Up.Amount, r.Position.Down.Amount, r.Position.Spent)
	fmt.Fprintf(&b, "guaranteed profit: %.4f\n", r.GuaranteedProfit)
	if r.RealizedPnL != nil {
		fmt.Fprintf(&b, "realized pnl: %+.4f", *r.RealizedPnL)
	} else {
		b.WriteString("realized pnl: n/a")
	}
	if r.RedeemTx != "" {
		fmt.Fprintf(&b, "\nredeem tx: %s", r.RedeemTx)
	}
	return title, b.String()
}
