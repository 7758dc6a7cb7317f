package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"monad-trade-agent-go/internal/domain"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// botAPI is the part of *tgbot.BotAPI the notifier uses.
type botAPI interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// PositionLister lists the valued positions of a wallet.
type PositionLister interface {
	Positions(ctx context.Context, wallet string) ([]domain.Position, error)
}

// Telegram sends trade notifications to one chat and answers /positions.
type Telegram struct {
	bot     botAPI
	chatID  int64
	logger  *zap.Logger
	book    PositionLister
	wallets []string
}

// NewTelegram connects a bot with token. book and wallets back the /positions command.
func NewTelegram(token string, chatID int64, book PositionLister, wallets []string, logger *zap.Logger) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegram(b, chatID, book, wallets, logger), nil
}

func newTelegram(bot botAPI, chatID int64, book PositionLister, wallets []string, logger *zap.Logger) *Telegram {
	return &Telegram{
		bot:     bot,
		chatID:  chatID,
		logger:  logger.Named("telegram"),
		book:    book,
		wallets: wallets,
	}
}

func (t *Telegram) send(text string) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return nil
	}
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, text))
	return err
}

// Publish sends one message per trade result.
func (t *Telegram) Publish(_ context.Context, wallet string, result domain.TradeResult) error {
	if err := t.send(FormatResult(wallet, result)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// FormatResult renders a trade result as a chat message.
func FormatResult(wallet string, r domain.TradeResult) string {
	var b strings.Builder
	if r.Success {
		fmt.Fprintf(&b, "✅ %s %s\n", strings.ToUpper(string(r.Action)), shortAddress(r.Token))
		fmt.Fprintf(&b, "in: %s\nout: %s\nprice: %s MON\n", r.AmountIn.String(), r.AmountOut.String(), r.EffectivePrice.StringFixed(10))
		if r.TxHash != "" {
			fmt.Fprintf(&b, "tx: %s\n", r.TxHash)
		}
	} else {
		fmt.Fprintf(&b, "❌ %s %s failed\n", strings.ToUpper(string(r.Action)), shortAddress(r.Token))
		fmt.Fprintf(&b, "error: %s\n", r.Error)
	}
	if r.Simulated {
		b.WriteString("(dry run)\n")
	}
	fmt.Fprintf(&b, "wallet: %s", shortAddress(wallet))
	return b.String()
}

func shortAddress(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:6] + "…" + a[len(a)-4:]
}

// Start long-polls for commands until ctx is done.
func (t *Telegram) Start(ctx context.Context) {
	if t == nil || t.bot == nil {
		return
	}

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		for {
			select {
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, upd)
			}
		}
	}()
}

func (t *Telegram) handleUpdate(ctx context.Context, upd tgbot.Update) {
	if upd.Message == nil || upd.Message.Chat == nil || upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
		return
	}
	switch upd.Message.Command() {
	case "positions":
		if err := t.send(t.positionsReport(ctx)); err != nil {
			t.logger.Warn("Failed to answer /positions", zap.Error(err))
		}
	}
}

func (t *Telegram) positionsReport(ctx context.Context) string {
	if t.book == nil {
		return "❗️ Position ledger is not available"
	}

	var b strings.Builder
	open := 0
	for _, w := range t.wallets {
		positions, err := t.book.Positions(ctx, w)
		if errors.Is(err, domain.ErrWalletNotFound) {
			continue
		}
		if err != nil {
			fmt.Fprintf(&b, "❗️ %s: %v\n", shortAddress(w), err)
			continue
		}
		for _, p := range positions {
			if !p.Open() {
				continue
			}
			if open == 0 {
				b.WriteString("📊 Open positions:\n")
			}
			open++
			fmt.Fprintf(&b, "- %s %s: %s @ %s, pnl %s%%\n",
				shortAddress(w), shortAddress(p.Token), p.Balance.String(),
				p.CostBasis.StringFixed(10), p.UnrealizedPnlPercent.StringFixed(2))
		}
	}
	if open == 0 && b.Len() == 0 {
		return "📭 No open positions"
	}
	return b.String()
}
