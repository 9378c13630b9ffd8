// Package processor talks to the external payment processor: charges for
// funding, transfers for withdrawals, and signed webhooks for their outcomes.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"brokerage_system/internal/metrics"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Outcome statuses reported by the processor
const (
	StatusSucceeded = "succeeded"
	StatusPending   = "pending"
	StatusFailed    = "failed"
)

var (
	// ErrUnavailable means the request was never sent because the circuit
	// breaker is open. Nothing can have happened at the processor.
	ErrUnavailable = errors.New("payment processor unavailable")
	// ErrOutcomeUnknown means the request may have reached the processor but
	// no usable answer came back (timeout, transport error, 5xx).
	ErrOutcomeUnknown = errors.New("payment processor outcome unknown")
)

// RejectedError is a 4xx answer: the processor refused the request
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payment processor rejected request (%d): %s", e.StatusCode, e.Message)
}

// Customer identifies the payer of a charge
type Customer struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name,omitempty"`
}

// ChargeRequest asks the processor to collect money from a payer
type ChargeRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reference     string          `json:"reference"`
	PaymentMethod string          `json:"payment_method,omitempty"` // card, mobile_money, bank_transfer
	Customer      Customer        `json:"customer"`
}

// Destination is where a transfer pays out to
type Destination struct {
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code,omitempty"`
	Name          string `json:"name,omitempty"`
}

// TransferRequest asks the processor to pay money out
type TransferRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reference   string          `json:"reference"`
	Destination Destination     `json:"destination"`
	Narration   string          `json:"narration,omitempty"`
}

// NextAction tells the payer what to do to complete an async charge
type NextAction struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Result is the processor's view of a charge or a transfer
type Result struct {
	ID         string          `json:"id"`
	Reference  string          `json:"reference"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Customer   *Customer       `json:"customer,omitempty"`
	NextAction *NextAction     `json:"next_action,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// Client is the HTTP client for the processor API
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

// NewClient builds a client with a per-call timeout and a circuit breaker
// that opens after five consecutive failures.
func NewClient(baseURL, secretKey string, timeout time.Duration, m *metrics.Metrics) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-processor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A rejection is a healthy processor saying no.
		IsSuccessful: func(err error) bool {
			var rejected *RejectedError
			return err == nil || errors.As(err, &rejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secretKey,
		http:    &http.Client{Timeout: timeout},
		cb:      cb,
		metrics: m,
	}
}

// InitiateCharge starts a charge; the reference doubles as idempotency key
func (c *Client) InitiateCharge(ctx context.Context, req ChargeRequest) (*Result, error) {
	return c.call(ctx, "charge", http.MethodPost, "/charges", req.Reference, req)
}

// GetCharge reads the current state of a charge
func (c *Client) GetCharge(ctx context.Context, id string) (*Result, error) {
	return c.call(ctx, "get_charge", http.MethodGet, "/charges/"+url.PathEscape(id), "", nil)
}

// InitiateTransfer starts a payout; the reference doubles as idempotency key
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (*Result, error) {
	return c.call(ctx, "transfer", http.MethodPost, "/transfers", req.Reference, req)
}

// GetTransfer reads the current state of a payout
func (c *Client) GetTransfer(ctx context.Context, id string) (*Result, error) {
	return c.call(ctx, "get_transfer", http.MethodGet, "/transfers/"+url.PathEscape(id), "", nil)
}

func (c *Client) call(ctx context.Context, op, method, path, idempotencyKey string, body any) (*Result, error) {
	out, err := c.cb.Execute(func() (any, error) {
		return c.do(ctx, method, path, idempotencyKey, body)
	})
	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "unavailable"
		err = ErrUnavailable
	case errors.Is(err, ErrOutcomeUnknown):
		outcome = "unknown"
	case err != nil:
		outcome = "rejected"
	}
	c.metrics.ProcessorCall(op, outcome)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"op":        op,
			"path":      path,
			"reference": idempotencyKey,
			"error":     err.Error(),
		}).Error("Payment processor call failed")
		return nil, err
	}
	res := out.(*Result)
	res.Status = NormalizeStatus(res.Status)
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body any) (*Result, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrOutcomeUnknown, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrOutcomeUnknown, resp.StatusCode)
	case resp.StatusCode >= 400:
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &e)
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: e.Message}
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrOutcomeUnknown, err)
	}
	return &res, nil
}

// NormalizeStatus folds the processor's status vocabulary into
// succeeded, pending or failed. Anything unrecognised is pending: it is
// never safe to guess success or failure.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "succeeded", "successful", "success", "completed":
		return StatusSucceeded
	case "failed", "failure", "cancelled", "declined", "reversed", "error":
		return StatusFailed
	default:
		return StatusPending
	}
}
