// Package supplier adapts the SMMGEN HTTP API: placing orders, querying
// their status and listing service rates.
package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/K2-bot/sender/internal/sender/data"
	"github.com/K2-bot/sender/pkg/logging"
	"github.com/K2-bot/sender/pkg/retry"
)

var (
	// ErrBadResponse means the supplier answered but without the expected
	// order payload; the order must not be resubmitted.
	ErrBadResponse = errors.New("unexpected supplier response")
	ErrNoStatus    = errors.New("no status for supplier order")
)

type Config struct {
	APIKey  string
	BaseURL string
	Retries int
	Timeout time.Duration
}

type Client struct {
	http    *resty.Client
	cfg     Config
	backoff retry.Backoff
	logger  *logging.ZapLogger
}

func NewClient(cfg Config, logger *logging.ZapLogger) *Client {
	if cfg.Retries == 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 25 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout)
	return &Client{
		http:    httpClient,
		cfg:     cfg,
		backoff: retry.Linear{MaxAttempts: cfg.Retries},
		logger:  logger,
	}
}

// PlaceOrder submits an order and returns the supplier-assigned reference.
func (c *Client) PlaceOrder(ctx context.Context, order data.Order) (string, error) {
	form := map[string]string{
		"key":      c.cfg.APIKey,
		"action":   "add",
		"service":  order.SupplierServiceID,
		"link":     order.Link,
		"quantity": strconv.FormatInt(order.Quantity, 10),
	}
	body, err := c.post(ctx, form)
	if err != nil {
		return "", err
	}
	var res map[string]json.RawMessage
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadResponse, string(body))
	}
	raw, ok := res["order"]
	if !ok {
		c.logger.WarnCtx(ctx, "supplier rejected order",
			zap.Int64("orderID", order.ID),
			zap.String("response", string(body)),
		)
		return "", fmt.Errorf("%w: %s", ErrBadResponse, string(body))
	}
	var ref Number
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("%w: %s", ErrBadResponse, string(body))
	}
	return string(ref), nil
}

// OrderStatus reports the supplier's view of a previously placed order.
type OrderStatus struct {
	Status     string  `json:"status"`
	Remains    *Number `json:"remains"`
	StartCount *Number `json:"start_count"`
	Charge     *Number `json:"charge"`
}

func (c *Client) GetOrderStatus(ctx context.Context, supplierOrderID string) (OrderStatus, error) {
	form := map[string]string{
		"key":    c.cfg.APIKey,
		"action": "status",
		"orders": supplierOrderID,
	}
	body, err := c.post(ctx, form)
	if err != nil {
		return OrderStatus{}, err
	}

	// The response is either keyed by order id or a flat status object.
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(body, &keyed); err != nil {
		return OrderStatus{}, fmt.Errorf("%w: %s", ErrBadResponse, string(body))
	}
	raw, ok := keyed[supplierOrderID]
	if !ok {
		raw = body
	}
	var status OrderStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return OrderStatus{}, fmt.Errorf("%w: %s", ErrBadResponse, string(body))
	}
	if status.Status == "" && status.Remains == nil && status.StartCount == nil && status.Charge == nil {
		return OrderStatus{}, ErrNoStatus
	}
	return status, nil
}

type ServiceRate struct {
	Service Number `json:"service"`
	Name    string `json:"name"`
	Rate    Number `json:"rate"`
}

func (c *Client) GetServices(ctx context.Context) ([]ServiceRate, error) {
	form := map[string]string{
		"key":    c.cfg.APIKey,
		"action": "services",
	}
	body, err := c.post(ctx, form)
	if err != nil {
		return nil, err
	}
	var services []ServiceRate
	if err := json.Unmarshal(body, &services); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, string(body))
	}
	return services, nil
}

// post runs one form request under the resilient executor. Transport errors
// and non-2xx answers are transient; they are retried with the linear delay
// before the last error is surfaced.
func (c *Client) post(ctx context.Context, form map[string]string) ([]byte, error) {
	return retry.Do(ctx, c.backoff, func(ctx context.Context) ([]byte, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetFormData(form).
			Post("")
		if err != nil {
			return nil, retry.Transient(fmt.Errorf("supplier request failed: %w", err))
		}
		if resp.IsError() {
			return nil, retry.Transient(fmt.Errorf("unexpected status code %v", resp.StatusCode()))
		}
		return resp.Body(), nil
	})
}
