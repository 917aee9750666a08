// internal/telegram/client.go
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-tg-bot/internal/bot"
)

const (
	DefaultBaseURL     = "https://api.telegram.org"
	DefaultPollTimeout = 30 * time.Second

	// MaxMessageLength is the Bot API limit for one text message.
	MaxMessageLength = 4096

	maxSendTries = 3
)

type Config struct {
	Token       string
	BaseURL     string
	PollTimeout time.Duration
}

// Client talks to the Telegram Bot API. It implements bot.Notifier.
type Client struct {
	http        *resty.Client
	pollTimeout time.Duration
	logger      *zap.Logger
}

var _ bot.Notifier = (*Client)(nil)

// NewClient создает клиента Bot API
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/") + "/bot" + cfg.Token).
		// long polling держит соединение pollTimeout секунд
		SetTimeout(cfg.PollTimeout + 10*time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		http:        httpClient,
		pollTimeout: cfg.PollTimeout,
		logger:      logger.Named("telegram"),
	}, nil
}

// GetUpdates long-polls for message updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"offset":          strconv.FormatInt(offset, 10),
			"timeout":         strconv.Itoa(int(c.pollTimeout.Seconds())),
			"allowed_updates": `["message"]`,
		}).
		Get("/getUpdates")
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	var updates []Update
	if err := decode(resp, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	return updates, nil
}

// SendMessage sends text, splitting it into several messages when it is
// longer than MaxMessageLength.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitText(text, MaxMessageLength) {
		err := c.withRetry(ctx, func() (*resty.Response, error) {
			return c.http.R().
				SetContext(ctx).
				SetHeader("Content-Type", "application/json").
				SetBody(map[string]interface{}{
					"chat_id":                  chatID,
					"text":                     chunk,
					"disable_web_page_preview": true,
				}).
				Post("/sendMessage")
		})
		if err != nil {
			return fmt.Errorf("sendMessage: %w", err)
		}
	}
	return nil
}

// SendDocument uploads a file as multipart form data.
func (c *Client) SendDocument(ctx context.Context, chatID int64, doc bot.Document, caption string) error {
	err := c.withRetry(ctx, func() (*resty.Response, error) {
		req := c.http.R().
			SetContext(ctx).
			SetFormData(map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}).
			SetFileReader("document", doc.Name, bytes.NewReader(doc.Data))
		if caption != "" {
			req.SetFormData(map[string]string{"caption": caption})
		}
		return req.Post("/sendDocument")
	})
	if err != nil {
		return fmt.Errorf("sendDocument: %w", err)
	}
	return nil
}

// Notify delivers a reply: the text first, then the attached document.
func (c *Client) Notify(ctx context.Context, chatID int64, n bot.Notification) error {
	if n.Text != "" {
		if err := c.SendMessage(ctx, chatID, n.Text); err != nil {
			return err
		}
	}
	if n.Document != nil {
		return c.SendDocument(ctx, chatID, *n.Document, "")
	}
	return nil
}

// withRetry retries network failures and 429 answers. Other API errors are final.
func (c *Client) withRetry(ctx context.Context, call func() (*resty.Response, error)) error {
	op := func() (struct{}, error) {
		resp, err := call()
		if err != nil {
			return struct{}{}, err
		}
		err = decode(resp, nil)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.Code == 429 && apiErr.RetryAfter > 0 {
				c.logger.Warn("Rate limited by Telegram", zap.Int("retry_after", apiErr.RetryAfter))
				return struct{}{}, backoff.RetryAfter(apiErr.RetryAfter)
			}
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxSendTries),
	)
	return err
}

// decode unpacks the envelope; out may be nil when the result is not needed.
func decode(resp *resty.Response, out interface{}) error {
	var env apiResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode(), err)
	}
	if !env.OK {
		apiErr := &APIError{Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode()
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	return json.Unmarshal(env.Result, out)
}

// SplitText cuts text into chunks of at most limit runes, preferring line breaks.
func SplitText(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
