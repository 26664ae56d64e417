// Package telegram is a minimal Bot API client covering what the service
// needs: sending notifications, uploading report files and long-polling
// operator commands.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/K2-bot/sender/pkg/logging"
)

type ParseMode string

const (
	ModePlain    = ParseMode("")
	ModeMarkdown = ParseMode("MarkdownV2")
	ModeHTML     = ParseMode("HTML")
)

// MaxMessageLen is the per-delivery size limit; longer texts are split into
// sequential deliveries to the same destination.
const MaxMessageLen = 3500

const defaultBaseURL = "https://api.telegram.org"

type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	http   *resty.Client
	logger *logging.ZapLogger
}

func NewClient(cfg Config, logger *logging.ZapLogger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 65 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(baseURL + "/bot" + cfg.Token).
		SetTimeout(timeout)
	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *Client) Send(ctx context.Context, chatID int64, text string, mode ParseMode) error {
	for _, part := range SplitMessage(text, MaxMessageLen) {
		body := map[string]any{
			"chat_id": chatID,
			"text":    part,
		}
		if mode != ModePlain {
			body["parse_mode"] = string(mode)
		}
		if _, err := c.call(ctx, "/sendMessage", body); err != nil {
			return err
		}
	}
	return nil
}

// TrySend delivers best-effort: a failed notification is logged and must
// never block the state transition that produced it.
func (c *Client) TrySend(ctx context.Context, chatID int64, text string, mode ParseMode) {
	if err := c.Send(ctx, chatID, text, mode); err != nil {
		c.logger.ErrorCtx(ctx, "telegram send failed",
			zap.Int64("chatID", chatID),
			zap.Error(err),
		)
	}
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, contents []byte) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("document", filename, bytes.NewReader(contents)).
		SetFormData(map[string]string{
			"chat_id": strconv.FormatInt(chatID, 10),
		}).
		Post("/sendDocument")
	if err != nil {
		return fmt.Errorf("document upload failed: %w", err)
	}
	return checkResponse(resp)
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
}

type Chat struct {
	ID int64 `json:"id"`
}

// GetUpdates long-polls for incoming messages starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	res, err := c.call(ctx, "/getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	})
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(res.Result, &updates); err != nil {
		return nil, fmt.Errorf("error unmarshalling updates: %w", err)
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, body map[string]any) (*apiResponse, error) {
	res := &apiResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(res).
		SetError(res).
		Post(method)
	if err != nil {
		return nil, fmt.Errorf("telegram request failed: %w", err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("telegram API error: %s", res.Description)
	}
	return res, nil
}

func checkResponse(resp *resty.Response) error {
	if resp.IsError() {
		return fmt.Errorf("unexpected status code %v: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// SplitMessage cuts text into rune-safe chunks of at most limit characters.
func SplitMessage(text string, limit int) []string {
	if text == "" {
		return []string{""}
	}
	runes := []rune(text)
	parts := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
