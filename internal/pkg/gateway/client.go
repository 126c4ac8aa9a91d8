package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/GymDesk/app/models"
	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
)

const (
	defaultCreateURL = "https://api.zeno.africa"
	defaultStatusURL = "https://api.zeno.africa/order-status"
	defaultTimeout   = 10 * time.Second
	webhookPath      = "/webhooks/payment"
)

// Config holds the ZenoPay credentials and endpoints.
type Config struct {
	APIKey     string
	AccountID  string
	SecretKey  string
	CreateURL  string
	StatusURL  string
	WebhookURL string
	Currency   string
	Timeout    time.Duration
}

// LoadConfig reads the gateway configuration from the environment. Missing
// credentials are a startup error.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		APIKey:     strings.TrimSpace(env.GetEnv("ZENOPAY_API_KEY", "")),
		AccountID:  strings.TrimSpace(env.GetEnv("ZENOPAY_ACCOUNT_ID", "")),
		SecretKey:  strings.TrimSpace(env.GetEnv("ZENOPAY_SECRET_KEY", "")),
		CreateURL:  strings.TrimSpace(env.GetEnv("ZENOPAY_API_URL", defaultCreateURL)),
		StatusURL:  strings.TrimSpace(env.GetEnv("ZENOPAY_STATUS_URL", defaultStatusURL)),
		WebhookURL: strings.TrimSpace(env.GetEnv("ZENOPAY_WEBHOOK_URL", "")),
		Currency:   strings.TrimSpace(env.GetEnv("PAYMENT_CURRENCY", "TZS")),
		Timeout:    time.Duration(env.GetEnvInt("ZENOPAY_TIMEOUT_SECONDS", 10)) * time.Second,
	}
	if cfg.WebhookURL == "" {
		if base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/"); base != "" {
			cfg.WebhookURL = base + webhookPath
		}
	}

	var missing []string
	if cfg.APIKey == "" {
		missing = append(missing, "ZENOPAY_API_KEY")
	}
	if cfg.AccountID == "" {
		missing = append(missing, "ZENOPAY_ACCOUNT_ID")
	}
	if cfg.SecretKey == "" {
		missing = append(missing, "ZENOPAY_SECRET_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("payment gateway credentials missing: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

// CreateOrderRequest is everything needed to open an order at the provider.
type CreateOrderRequest struct {
	OrderID       string               `json:"order_id" validate:"required,max=64"`
	MemberID      string               `json:"member_id" validate:"required,max=64"`
	Amount        int64                `json:"amount" validate:"gt=0"`
	BuyerName     string               `json:"buyer_name" validate:"required,max=150"`
	BuyerEmail    string               `json:"buyer_email" validate:"required,email"`
	BuyerPhone    string               `json:"buyer_phone" validate:"required,tzphone"`
	PaymentMethod models.PaymentMethod `json:"payment_method" validate:"oneof=mpesa airtel halopesa tigopesa mix_by_yas"`
}

type CreateOrderResult struct {
	ProviderOrderID string
	PaymentURL      string
	Message         string
}

type StatusResult struct {
	Status        models.OrderStatus
	TransactionID string
	// RawStatus is the provider's payment_status as received.
	RawStatus string
	// Recognized is false when RawStatus was not in the known vocabulary.
	Recognized bool
}

type createOrderResponse struct {
	Status     string `json:"status"`
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
	Message    string `json:"message"`
}

type statusResponse struct {
	Status        string `json:"status"`
	OrderID       string `json:"order_id"`
	PaymentStatus string `json:"payment_status"`
	TransactionID string `json:"transaction_id"`
	TransID       string `json:"transid"`
	Message       string `json:"message"`
}

// Client talks to the ZenoPay mobile money API. It never touches the order store.
type Client struct {
	cfg        Config
	HTTPClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.CreateURL == "" {
		cfg.CreateURL = defaultCreateURL
	}
	if cfg.StatusURL == "" {
		cfg.StatusURL = defaultStatusURL
	}
	if cfg.Currency == "" {
		cfg.Currency = "TZS"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg: cfg,
		HTTPClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NewClientFromEnv loads Config from the environment and builds a Client.
func NewClientFromEnv() (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewClient(*cfg), nil
}

// Currency is the fixed currency orders are created in.
func (c *Client) Currency() string {
	return c.cfg.Currency
}

// CreateOrder opens a payment order at the provider. Invalid input fails
// with a ValidationError and no request is sent.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("create_order", "1")
	form.Set("api_key", c.cfg.APIKey)
	form.Set("account_id", c.cfg.AccountID)
	form.Set("secret_key", c.cfg.SecretKey)
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("buyer_name", strings.TrimSpace(req.BuyerName))
	form.Set("buyer_email", strings.TrimSpace(req.BuyerEmail))
	form.Set("buyer_phone", strings.TrimSpace(req.BuyerPhone))
	form.Set("order_reference", req.OrderID)
	form.Set("webhook_url", c.cfg.WebhookURL)
	form.Set("payment_method", string(req.PaymentMethod))
	form.Set("currency", c.cfg.Currency)

	const op = "create_order"
	code, body, err := c.postForm(ctx, op, c.cfg.CreateURL, form)
	if err != nil {
		return nil, err
	}

	var out createOrderResponse
	if jerr := json.Unmarshal(body, &out); jerr != nil {
		return nil, &GatewayError{Op: op, StatusCode: code, Message: "unreadable provider response", Err: jerr}
	}
	if code < 200 || code >= 300 {
		return nil, &GatewayError{Op: op, StatusCode: code, Message: out.Message, Rejected: declined(code)}
	}
	if !strings.EqualFold(strings.TrimSpace(out.Status), "success") {
		return nil, &GatewayError{Op: op, StatusCode: code, Message: out.Message, Rejected: true}
	}
	if strings.TrimSpace(out.OrderID) == "" {
		return nil, &GatewayError{Op: op, StatusCode: code, Message: "provider response without order_id"}
	}

	log.Infof("[Gateway] Created order %s for reference %s", out.OrderID, req.OrderID)
	return &CreateOrderResult{
		ProviderOrderID: strings.TrimSpace(out.OrderID),
		PaymentURL:      strings.TrimSpace(out.PaymentURL),
		Message:         out.Message,
	}, nil
}

// CheckStatus asks the provider for the current state of an order.
func (c *Client) CheckStatus(ctx context.Context, providerOrderID string) (*StatusResult, error) {
	id := strings.TrimSpace(providerOrderID)
	if id == "" {
		return nil, &ValidationError{Field: "order_id", Message: "provider order id is required"}
	}

	form := url.Values{}
	form.Set("check_status", "1")
	form.Set("order_id", id)
	form.Set("api_key", c.cfg.APIKey)
	form.Set("secret_key", c.cfg.SecretKey)

	const op = "check_status"
	code, body, err := c.postForm(ctx, op, c.cfg.StatusURL, form)
	if err != nil {
		return nil, err
	}

	var out statusResponse
	if jerr := json.Unmarshal(body, &out); jerr != nil {
		return nil, &GatewayError{Op: op, StatusCode: code, Message: "unreadable provider response", Err: jerr}
	}
	if code < 200 || code >= 300 || strings.EqualFold(out.Status, "error") {
		return nil, &GatewayError{
			Op:         op,
			StatusCode: code,
			Message:    out.Message,
			Rejected:   code < 300 || declined(code),
			NotFound:   orderNotFound(code, out.Message),
		}
	}

	status, known := MapProviderStatus(out.PaymentStatus)
	if !known {
		log.Warnf("[Gateway] Unrecognized payment_status %q for order %s", out.PaymentStatus, id)
	}
	tx := strings.TrimSpace(out.TransactionID)
	if tx == "" {
		tx = strings.TrimSpace(out.TransID)
	}
	return &StatusResult{
		Status:        status,
		TransactionID: tx,
		RawStatus:     out.PaymentStatus,
		Recognized:    known,
	}, nil
}

// declined reports whether a 4xx answer refuses the request outright. Timeouts
// and throttling are temporary and say nothing about the order.
func declined(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

// orderNotFound reports whether a failed status check means the provider has
// no order with that id. Credential and throttling errors never do.
func orderNotFound(code int, message string) bool {
	switch code {
	case http.StatusNotFound:
		return true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	if code >= 500 {
		return false
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

func (c *Client) postForm(ctx context.Context, op, endpoint string, form url.Values) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, &GatewayError{Op: op, Message: "could not build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		msg := "provider unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "provider timed out"
		}
		return 0, nil, &GatewayError{Op: op, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "could not read provider response", Err: err}
	}
	return resp.StatusCode, body, nil
}
