// Package notifier delivers digests and command replies over Telegram.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

// DefaultAPIBase is the Telegram Bot API root.
const DefaultAPIBase = "https://api.telegram.org"

// MaxMessageLen is the Bot API limit on a single message text.
const MaxMessageLen = 4096

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	APIBase  string
	Client   *http.Client
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		APIBase:  DefaultAPIBase,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (t *TelegramNotifier) endpoint(method string) string {
	base := t.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	return fmt.Sprintf("%s/bot%s/%s", base, t.BotToken, method)
}

// apiResponse is the envelope every Bot API method answers with.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// call invokes a Bot API method. A nil payload issues a GET with query,
// otherwise the payload is posted as JSON. out, when set, receives result.
func (t *TelegramNotifier) call(ctx context.Context, client *http.Client, method string, query url.Values, payload, out any) error {
	target := t.endpoint(method)
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var (
		req *http.Request
		err error
	)
	if payload == nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	} else {
		var body []byte
		if body, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal %s payload: %w", method, err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var env apiResponse
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode != http.StatusOK {
		reason := strings.TrimSpace(string(raw))
		if decodeErr == nil && env.Description != "" {
			reason = env.Description
		}
		return fmt.Errorf("telegram %s: status %d: %s", method, resp.StatusCode, reason)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode %s response: %w", method, decodeErr)
	}
	if !env.OK {
		return fmt.Errorf("telegram %s: %s", method, env.Description)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func (t *TelegramNotifier) sendChunk(ctx context.Context, chunk string) error {
	return t.call(ctx, t.Client, "sendMessage", nil, map[string]string{
		"chat_id":    t.ChatID,
		"text":       chunk,
		"parse_mode": "HTML",
	}, nil)
}

// Send sends an HTML message to the configured chat.
func (t *TelegramNotifier) Send(text string) error {
	return t.SendContext(context.Background(), text)
}

// SendContext sends text, split into MaxMessageLen chunks on line boundaries.
func (t *TelegramNotifier) SendContext(ctx context.Context, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLen) {
		if err := t.sendChunk(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry. Chunks
// already delivered are not resent when a later one fails.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	for _, chunk := range SplitMessage(text, MaxMessageLen) {
		if err := t.retryChunk(ctx, chunk, maxRetries); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramNotifier) retryChunk(ctx context.Context, chunk string, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if lastErr = t.sendChunk(ctx, chunk); lastErr == nil {
			return nil
		}
		if i == maxRetries {
			break
		}
		backoff := time.Duration(1<<uint(i)) * time.Second
		log.Warnf("telegram send failed (attempt %d/%d): %v, retrying in %v", i+1, maxRetries+1, lastErr, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// SplitMessage breaks text into pieces of at most limit runes, cutting at
// newlines where possible. Lines longer than limit are cut mid-line.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		chunks []string
		cur    strings.Builder
		n      int
	)
	flush := func() {
		if c := strings.TrimRight(cur.String(), "\n"); c != "" {
			chunks = append(chunks, c)
		}
		cur.Reset()
		n = 0
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		ln := utf8.RuneCountInString(line)
		if n+ln > limit {
			flush()
		}
		for ln > limit {
			r := []rune(line)
			chunks = append(chunks, string(r[:limit]))
			line = string(r[limit:])
			ln -= limit
		}
		cur.WriteString(line)
		n += ln
	}
	flush()
	return chunks
}
