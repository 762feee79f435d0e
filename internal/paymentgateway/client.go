package paymentgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	apiKeyHeader      = "thawani-api-key"
	checkoutModePay   = "payment"
	defaultTimeout    = 30 * time.Second
	maxErrorBodyBytes = 512

	maxProductNameRunes = 40
)

var (
	ErrUnavailable    = errors.New("payment gateway unavailable")
	ErrInvalidRequest = errors.New("invalid checkout request")
)

// Config is passed explicitly at construction; the client never reads the environment.
type Config struct {
	BaseURL        string
	CheckoutURL    string
	SecretKey      string
	PublishableKey string
	Timeout        time.Duration
}

// APIError is returned when the gateway answers with a non-2xx status.
type APIError struct {
	StatusCode  int
	Description string
	Body        string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("payment gateway returned %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return ErrUnavailable
}

type CheckoutRequest struct {
	ClientReferenceID string
	ProductName       string
	Amount            decimal.Decimal
	Currency          string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

type Session struct {
	SessionID         string         `json:"session_id"`
	SessionURL        string         `json:"session_url"`
	ClientReferenceID string         `json:"client_reference_id"`
	PaymentStatus     string         `json:"payment_status"`
	TotalAmount       int64          `json:"total_amount"`
	Metadata          map[string]any `json:"metadata"`
}

type product struct {
	Name       string `json:"name"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
}

type checkoutPayload struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Mode              string            `json:"mode"`
	Products          []product         `json:"products"`
	SuccessURL        string            `json:"success_url"`
	CancelURL         string            `json:"cancel_url"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type envelope struct {
	Success     *bool           `json:"success"`
	Code        int             `json:"code"`
	Description string          `json:"description"`
	Data        json.RawMessage `json:"data"`
}

type Client struct {
	cfg    Config
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader(apiKeyHeader, cfg.SecretKey)

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger,
	}
}

// CreateCheckoutSession makes exactly one outbound call. Transport failures and
// non-2xx answers are returned as errors wrapping ErrUnavailable.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	unitAmount, err := ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	name := req.ProductName
	if name == "" {
		name = "Payment"
	}
	// product names longer than 40 characters are rejected by the gateway
	if utf8.RuneCountInString(name) > maxProductNameRunes {
		name = string([]rune(name)[:maxProductNameRunes])
	}

	payload := checkoutPayload{
		ClientReferenceID: req.ClientReferenceID,
		Mode:              checkoutModePay,
		Products:          []product{{Name: name, UnitAmount: unitAmount, Quantity: 1}},
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
		Metadata:          req.Metadata,
	}

	c.logger.Info("creating checkout session",
		"client_reference_id", req.ClientReferenceID,
		"amount", req.Amount.String(),
		"currency", NormalizeCurrency(req.Currency),
		"unit_amount", unitAmount)

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/checkout/session")
	if err != nil {
		c.logger.Error("checkout session request failed", "error", err, "client_reference_id", req.ClientReferenceID)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	session, err := c.decodeSession(resp)
	if err != nil {
		c.logger.Error("checkout session rejected",
			"error", err,
			"status", resp.StatusCode(),
			"client_reference_id", req.ClientReferenceID)
		return nil, err
	}
	if session.SessionURL == "" {
		session.SessionURL = c.CheckoutURL(session.SessionID)
	}

	c.logger.Info("checkout session created",
		"session_id", session.SessionID,
		"client_reference_id", req.ClientReferenceID)
	return session, nil
}

// RetrieveSession fetches the gateway's current view of a session.
func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", sessionID).
		Get("/checkout/session/{id}")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	session, err := c.decodeSession(resp)
	if err != nil {
		return nil, err
	}
	if session.SessionURL == "" {
		session.SessionURL = c.CheckoutURL(session.SessionID)
	}
	return session, nil
}

// CheckoutURL is where the client's browser is sent to pay.
func (c *Client) CheckoutURL(sessionID string) string {
	if c.cfg.CheckoutURL == "" || sessionID == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s?key=%s",
		strings.TrimRight(c.cfg.CheckoutURL, "/"),
		url.PathEscape(sessionID),
		url.QueryEscape(c.cfg.PublishableKey))
}

func (c *Client) decodeSession(resp *resty.Response) (*Session, error) {
	body := resp.Body()

	var env envelope
	decodeErr := json.Unmarshal(body, &env)

	if !resp.IsSuccess() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: truncate(string(body), maxErrorBodyBytes)}
		if decodeErr == nil {
			apiErr.Description = env.Description
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, decodeErr)
	}
	if env.Success != nil && !*env.Success {
		return nil, &APIError{StatusCode: resp.StatusCode(), Description: env.Description, Body: truncate(string(body), maxErrorBodyBytes)}
	}

	var session Session
	if err := json.Unmarshal(env.Data, &session); err != nil {
		return nil, fmt.Errorf("%w: malformed session data: %v", ErrUnavailable, err)
	}
	if session.SessionID == "" {
		return nil, fmt.Errorf("%w: response missing session_id", ErrUnavailable)
	}
	return &session, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
