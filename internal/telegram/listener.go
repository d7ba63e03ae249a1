package telegram

import (
	"context"
	"strings"
	"time"

	"bullwatch/internal/logger"
)

// update is the part of a Telegram Update the listener reads.
type update struct {
	UpdateID int `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		From struct {
			Username string `json:"username"`
		} `json:"from"`
	} `json:"message"`
}

// Handler answers one command. cmd is lower-cased without the leading slash
// or a @botname suffix. An empty reply sends nothing.
type Handler func(ctx context.Context, cmd string, args []string) string

// pollTimeout is the long-poll wait passed to getUpdates.
var pollTimeout = 50

// Listen long-polls for commands until ctx ends. Only messages from the
// configured chat are answered; others are logged and ignored.
func (b *Bot) Listen(ctx context.Context, handle Handler) {
	if !b.Enabled() {
		logger.Infof("telegram: listener disabled, credentials missing")
		return
	}
	logger.Infof("telegram: listener started")

	offset := 0
	for ctx.Err() == nil {
		var updates []update
		err := b.call(ctx, "getUpdates", map[string]any{
			"offset":          offset,
			"timeout":         pollTimeout,
			"allowed_updates": []string{"message"},
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warnf("telegram: getUpdates: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * b.backoff):
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			b.dispatch(ctx, u, handle)
		}
	}
	logger.Infof("telegram: listener stopped")
}

func (b *Bot) dispatch(ctx context.Context, u update, handle Handler) {
	if u.Message.Chat.ID != b.chatID {
		logger.Warnf("telegram: ignoring %q from unauthorized chat %d (@%s)",
			u.Message.Text, u.Message.Chat.ID, u.Message.From.Username)
		return
	}

	cmd, args, ok := parseCommand(u.Message.Text)
	if !ok {
		return
	}
	logger.Infof("telegram: command /%s %v", cmd, args)

	reply := handle(ctx, cmd, args)
	if reply == "" {
		return
	}
	if err := b.Send(ctx, reply); err != nil {
		logger.Errorf("telegram: reply to /%s: %v", cmd, err)
	}
}

// parseCommand splits "/Price@my_bot aapl" into ("price", ["aapl"]).
func parseCommand(text string) (cmd string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}
	cmd = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), fields[1:], true
}
