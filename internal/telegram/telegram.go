// Package telegram pushes digests and alerts to a Telegram chat and answers
// read-only commands sent from that chat.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bullwatch/internal/logger"
)

// DefaultAPIBase is the public Bot API.
const DefaultAPIBase = "https://api.telegram.org"

// maxMessage is Telegram's limit on message text, in bytes of UTF-8.
const maxMessage = 4096

// Bot talks to one chat through one bot token.
type Bot struct {
	token   string
	chatID  int64
	apiBase string
	http    *http.Client
	backoff time.Duration // first retry delay; doubles per attempt
}

// New creates a bot. It is disabled when token or chatID is empty.
func New(token string, chatID int64) *Bot {
	return &Bot{
		token:   token,
		chatID:  chatID,
		apiBase: DefaultAPIBase,
		http:    &http.Client{Timeout: 75 * time.Second},
		backoff: time.Second,
	}
}

// SetAPIBase points the bot at another Bot API server.
func (b *Bot) SetAPIBase(base string) { b.apiBase = strings.TrimRight(base, "/") }

// Enabled reports whether credentials are configured.
func (b *Bot) Enabled() bool { return b != nil && b.token != "" && b.chatID != 0 }

func (b *Bot) url(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", b.apiBase, b.token, method)
}

// apiResponse is the envelope of every Bot API reply.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (b *Bot) call(ctx context.Context, method string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram %s: read: %w", method, err)
	}
	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("telegram %s: status %d: decode: %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram %s: %s (code %d)", method, env.Description, env.ErrorCode)
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// Send posts text to the chat as a monospace block, so markdown tables keep
// their columns. Long text is truncated.
func (b *Bot) Send(ctx context.Context, text string) error {
	if !b.Enabled() {
		return nil
	}
	const fence = "```"
	limit := maxMessage - 2*len(fence) - 2 - len("...")
	if len(text) > limit {
		text = truncate(text, limit) + "..."
	}
	return b.call(ctx, "sendMessage", map[string]any{
		"chat_id":    b.chatID,
		"text":       fence + "\n" + text + "\n" + fence,
		"parse_mode": "Markdown",
	}, nil)
}

// SendWithRetry sends with exponential backoff.
func (b *Bot) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := b.Send(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == maxRetries {
			break
		}
		wait := b.backoff << uint(i)
		logger.Warnf("telegram: send failed (attempt %d/%d): %v, retrying in %s", i+1, maxRetries+1, err, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxRetries+1, lastErr)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(c byte) bool { return c&0xC0 != 0x80 }
