package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Dhoini/parking-payments/pkg/logger"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 15 * time.Second
	maxResponseBody       = 1 << 20
)

// Config конфигурация клиента эквайринга
type Config struct {
	TerminalKey    string
	TerminalSecret string
	BaseURL        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Client представляет клиент для работы с API эквайринга
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient создает новый клиент эквайринга
func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
		},
		log: log.Named("gateway"),
	}
}

// TerminalKey возвращает ключ терминала
func (c *Client) TerminalKey() string {
	return c.cfg.TerminalKey
}

// VerifyCallback проверяет подпись уведомления от эквайринга
func (c *Client) VerifyCallback(body []byte) (bool, error) {
	return VerifyCallbackToken(body, c.cfg.TerminalSecret)
}

// Init создает платеж с двухстадийной оплатой (холдирование суммы)
func (c *Client) Init(ctx context.Context, req InitRequest) (*Response, error) {
	body := map[string]interface{}{
		"Amount":      req.Amount,
		"OrderId":     req.OrderID,
		"Description": req.Description,
		"PayType":     "T",
	}
	if req.CustomerKey != "" {
		body["CustomerKey"] = req.CustomerKey
	}
	if req.Recurrent {
		body["Recurrent"] = "Y"
	}
	if req.Receipt != nil {
		body["Receipt"] = req.Receipt
	}
	if len(req.Data) > 0 {
		body["DATA"] = req.Data
	}
	return c.call(ctx, "Init", body)
}

// Charge проводит рекуррентное списание по сохраненной карте
func (c *Client) Charge(ctx context.Context, paymentID, rebillID string) (*Response, error) {
	return c.call(ctx, "Charge", map[string]interface{}{
		"PaymentId": paymentID,
		"RebillId":  rebillID,
	})
}

// Confirm подтверждает ранее захолдированный платеж
func (c *Client) Confirm(ctx context.Context, paymentID string, amount int64) (*Response, error) {
	return c.call(ctx, "Confirm", map[string]interface{}{
		"PaymentId": paymentID,
		"Amount":    amount,
	})
}

// Cancel отменяет холд или возвращает средства. Без суммы возвращается весь остаток.
func (c *Client) Cancel(ctx context.Context, paymentID string, amount *int64) (*Response, error) {
	body := map[string]interface{}{
		"PaymentId": paymentID,
	}
	if amount != nil {
		body["Amount"] = *amount
	}
	return c.call(ctx, "Cancel", body)
}

// GetState запрашивает текущий статус платежа
func (c *Client) GetState(ctx context.Context, paymentID string) (*Response, error) {
	return c.call(ctx, "GetState", map[string]interface{}{
		"PaymentId": paymentID,
	})
}

// call подписывает и отправляет запрос. Любая транспортная ошибка превращается в ErrNoResult.
func (c *Client) call(ctx context.Context, method string, body map[string]interface{}) (*Response, error) {
	body["TerminalKey"] = c.cfg.TerminalKey

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}
	token, err := SignBody(payload, c.cfg.TerminalSecret)
	if err != nil {
		return nil, err
	}
	body["Token"] = token
	if payload, err = json.Marshal(body); err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warnw("Gateway request failed", "method", method, "error", err)
		return nil, fmt.Errorf("%s: %w", method, ErrNoResult)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		c.log.Warnw("Failed to read gateway response", "method", method, "error", err)
		return nil, fmt.Errorf("%s: %w", method, ErrNoResult)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Warnw("Gateway returned unexpected status", "method", method, "status", resp.StatusCode)
		return nil, fmt.Errorf("%s: http %d: %w", method, resp.StatusCode, ErrNoResult)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		c.log.Warnw("Failed to decode gateway response", "method", method, "error", err)
		return nil, fmt.Errorf("%s: %w", method, ErrNoResult)
	}

	c.log.Debugw("Gateway call finished",
		"method", method,
		"payment_id", out.PaymentID.String(),
		"status", out.Status,
		"success", out.Success,
		"error_code", out.ErrorCode,
		"duration", time.Since(started),
	)
	return &out, nil
}
