package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payment webhook event types the orchestrator reacts to.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// PaymentIntent is the gateway-side handle handed to the storefront client.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

// CaptureResult reports a successful capture.
type CaptureResult struct {
	PaymentID string
}

// PaymentGateway is the narrow payment collaborator contract: create an
// intent for a computed total, and capture-or-verify a client-side token.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*PaymentIntent, error)
	Capture(ctx context.Context, token string) (*CaptureResult, error)
}

// PaymentEvent is a verified, decoded webhook delivery.
type PaymentEvent struct {
	Type      string
	PaymentID string
}

// StripeGateway talks to a Stripe-compatible payment API.
type StripeGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewStripeGateway constructs StripeGateway against the given API base URL.
func NewStripeGateway(secretKey, baseURL string) *StripeGateway {
	return &StripeGateway{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

type stripeIntentResponse struct {
	ID               string `json:"id"`
	ClientSecret     string `json:"client_secret"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateIntent registers a payment intent for the given amount.
func (g *StripeGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount.Mul(decimal.NewFromInt(100)).IntPart(), 10))
	form.Set("currency", strings.ToLower(currency))
	for k, v := range metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	resp, err := g.do(ctx, http.MethodPost, "/v1/payment_intents", form)
	if err != nil {
		return nil, err
	}

	return &PaymentIntent{
		ID:           resp.ID,
		ClientSecret: resp.ClientSecret,
		Status:       resp.Status,
	}, nil
}

// Capture verifies that the client-confirmed intent actually succeeded.
// A non-succeeded status is a decline, not a transport failure.
func (g *StripeGateway) Capture(ctx context.Context, token string) (*CaptureResult, error) {
	resp, err := g.do(ctx, http.MethodGet, "/v1/payment_intents/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, err
	}

	if resp.Status != "succeeded" {
		detail := "payment not completed"
		if resp.LastPaymentError != nil && resp.LastPaymentError.Message != "" {
			detail = resp.LastPaymentError.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, detail)
	}

	return &CaptureResult{PaymentID: resp.ID}, nil
}

func (g *StripeGateway) do(ctx context.Context, method, path string, form url.Values) (*stripeIntentResponse, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpResp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: payment provider timed out", ErrPaymentFailed)
		}
		return nil, fmt.Errorf("execute payment request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read payment response: %w", err)
	}

	var decoded stripeIntentResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal payment response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		detail := "payment provider rejected the request"
		if decoded.Error != nil && decoded.Error.Message != "" {
			detail = decoded.Error.Message
		}
		return nil, fmt.Errorf("%w: %s", ErrPaymentFailed, detail)
	}

	return &decoded, nil
}

// webhookTolerance bounds how stale a signed webhook timestamp may be.
const webhookTolerance = 5 * time.Minute

var errWebhookSignature = errors.New("webhook signature verification failed")

// VerifyWebhook checks the Stripe-style signature header
// ("t=<unix>,v1=<hmac>") against the raw payload and decodes the event.
// Any verification problem rejects the delivery; nothing is ever processed
// from an unverified payload.
func VerifyWebhook(payload []byte, sigHeader, secret string) (*PaymentEvent, error) {
	return verifyWebhookAt(payload, sigHeader, secret, time.Now())
}

func verifyWebhookAt(payload []byte, sigHeader, secret string, now time.Time) (*PaymentEvent, error) {
	if secret == "" || sigHeader == "" {
		return nil, errWebhookSignature
	}

	var timestamp int64
	var signatures [][]byte
	for _, part := range strings.Split(sigHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return nil, errWebhookSignature
			}
			timestamp = parsed
		case "v1":
			sig, err := hex.DecodeString(kv[1])
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return nil, errWebhookSignature
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > webhookTolerance || age < -webhookTolerance {
		return nil, errWebhookSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	valid := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, errWebhookSignature
	}

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, errWebhookSignature
	}

	return &PaymentEvent{Type: decoded.Type, PaymentID: decoded.Data.Object.ID}, nil
}

// SignWebhookPayload produces the signature header for a payload, used by
// tests and local tooling to emulate gateway deliveries.
func SignWebhookPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(at.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
