package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"bullwatch/internal/report"
)

const botHelp = `Commands:
/wallet - cash, holdings and total value
/bullish [n] - today's top bullish scores
/price <TICKER> - live price
/overview <TICKER> - trend, change and latest indicators`

// botCommand answers a chat command from the state watch keeps live.
// Everything it does is read-only.
func (a *App) botCommand(ctx context.Context, cmd string, args []string) string {
	switch cmd {
	case "start", "help":
		return botHelp

	case "wallet":
		v := a.Wallet.View()
		if v.Snapshot == nil {
			if err := a.Wallet.Refresh(ctx); err != nil {
				return fmt.Sprintf("Wallet unavailable: %v", err)
			}
			v = a.Wallet.View()
		}
		return report.WalletMarkdown(v)

	case "bullish":
		n := a.Config.Digest.Top
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
				n = v
			}
		}
		scores, err := a.Market.TodayBullish(ctx)
		if err != nil {
			return fmt.Sprintf("Scores unavailable: %v", err)
		}
		return report.BullishMarkdown(scores, n)

	case "price":
		if len(args) != 1 {
			return "Usage: /price <TICKER>"
		}
		// One-off read: the terminal's tracked ticker is left alone.
		obs, err := a.prices.LivePrice(ctx, args[0])
		if err != nil {
			a.Session.Expire(err)
			return fmt.Sprintf("%s: unavailable (%v)", strings.ToUpper(args[0]), err)
		}
		return fmt.Sprintf("%s: %s", obs.Ticker, report.USD(obs.Price))

	case "overview":
		if len(args) != 1 {
			return "Usage: /overview <TICKER>"
		}
		ov, err := a.Market.Overview(ctx, args[0])
		if err != nil {
			return fmt.Sprintf("Overview unavailable: %v", err)
		}
		return report.OverviewMarkdown(ov)
	}
	return fmt.Sprintf("Unknown command /%s\n\n%s", cmd, botHelp)
}
