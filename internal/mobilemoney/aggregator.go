package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrAggregatorUnreachable indicates a transport failure before the
// aggregator gave a definitive answer.
var ErrAggregatorUnreachable = errors.New("mobile money aggregator unreachable")

// Aggregator represents the connector to the external mobile-money service,
// reached through its proxy. The proxy owns credential encoding and auth
// headers; this client only speaks the proxy's JSON contract.
type Aggregator interface {
	LinkAccount(ctx context.Context, req LinkRequest) (LinkResponse, error)
	SendPayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error)
}

// LinkRequest asks the aggregator to associate a phone number with a user.
type LinkRequest struct {
	MobileNumber string `json:"mobileNumber"`
	UserID       string `json:"userId"`
}

// LinkResponse is the aggregator's answer to a link request.
type LinkResponse struct {
	LinkReference string `json:"linkReference"`
	Status        string `json:"status"`
}

// PaymentRequest describes an off-ledger transfer between mobile-money accounts.
type PaymentRequest struct {
	Amount          string `json:"amount"`
	RecipientID     string `json:"recipientId"`
	RecipientNumber string `json:"recipientNumber"`
	SenderID        string `json:"senderId"`
	SenderNumber    string `json:"senderNumber"`
}

// PaymentResponse is the aggregator's answer to a payment request.
type PaymentResponse struct {
	TransactionReference string `json:"transactionReference"`
	Status               string `json:"status"`
}

// HTTPAggregator calls the proxy over HTTP.
type HTTPAggregator struct {
	baseURL string
	http    *http.Client
}

// NewHTTPAggregator builds an aggregator client for the proxy base URL.
func NewHTTPAggregator(baseURL string, timeout time.Duration) *HTTPAggregator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPAggregator{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// LinkAccount posts a link request to the proxy.
func (a *HTTPAggregator) LinkAccount(ctx context.Context, req LinkRequest) (LinkResponse, error) {
	var resp LinkResponse
	if err := a.post(ctx, "/api/mobile-money/link", req, &resp); err != nil {
		return LinkResponse{}, err
	}
	return resp, nil
}

// SendPayment posts an off-ledger payment request to the proxy.
func (a *HTTPAggregator) SendPayment(ctx context.Context, req PaymentRequest) (PaymentResponse, error) {
	var resp PaymentResponse
	if err := a.post(ctx, "/api/mobile-money/payment", req, &resp); err != nil {
		return PaymentResponse{}, err
	}
	return resp, nil
}

func (a *HTTPAggregator) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAggregatorUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		if failure.Error == "" {
			failure.Error = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return fmt.Errorf("aggregator rejected request: %s", failure.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StaticAggregator simulates a successful aggregator integration for dev mode
// and tests.
type StaticAggregator struct{}

// LinkAccount approves the link with a synthetic reference.
func (StaticAggregator) LinkAccount(_ context.Context, _ LinkRequest) (LinkResponse, error) {
	return LinkResponse{LinkReference: uuid.NewString(), Status: "ACTIVE"}, nil
}

// SendPayment approves the payment with a synthetic reference.
func (StaticAggregator) SendPayment(_ context.Context, _ PaymentRequest) (PaymentResponse, error) {
	return PaymentResponse{TransactionReference: uuid.NewString(), Status: "COMPLETED"}, nil
}
