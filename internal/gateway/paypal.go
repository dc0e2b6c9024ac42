package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Spolkip/AtlasCoreSite/internal/httpclient"
	"github.com/Spolkip/AtlasCoreSite/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoApprovalURL is returned when a created payment has no approval link
var ErrNoApprovalURL = errors.New("paypal payment has no approval_url link")

// Payment is a created payment awaiting buyer approval
type Payment struct {
	ID          string
	ApprovalURL string
}

// ExecutedPayment is the gateway's view of a captured payment
type ExecutedPayment struct {
	ID         string
	State      string
	PaidAmount decimal.Decimal
	Currency   string
}

// PayPal talks to the PayPal REST payments API
type PayPal struct {
	http         *httpclient.Client
	baseURL      string
	clientID     string
	clientSecret string
	returnURL    string
	cancelURL    string
	logger       *zap.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayPal creates a PayPal client
func NewPayPal(hc *httpclient.Client, baseURL, clientID, clientSecret, returnURL, cancelURL string) *PayPal {
	return &PayPal{
		http:         hc,
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		returnURL:    returnURL,
		cancelURL:    cancelURL,
		logger:       util.GetLogger(),
	}
}

// IsConfigured reports whether credentials are present
func (p *PayPal) IsConfigured() bool {
	return p.clientID != "" && p.clientSecret != ""
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type amount struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

type transaction struct {
	Amount      amount `json:"amount"`
	Description string `json:"description,omitempty"`
	Custom      string `json:"custom,omitempty"`
}

type createPaymentRequest struct {
	Intent       string            `json:"intent"`
	Payer        map[string]string `json:"payer"`
	RedirectURLs map[string]string `json:"redirect_urls"`
	Transactions []transaction     `json:"transactions"`
}

type paymentResponse struct {
	ID           string        `json:"id"`
	State        string        `json:"state"`
	Links        []link        `json:"links"`
	Transactions []transaction `json:"transactions"`
}

// CreatePayment creates a sale and returns the buyer approval URL
func (p *PayPal) CreatePayment(ctx context.Context, total decimal.Decimal, currency, description, orderID string) (*Payment, error) {
	ctx, span := util.StartSpan(ctx, "PayPal.CreatePayment")
	defer span.End()

	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	req := createPaymentRequest{
		Intent: "sale",
		Payer:  map[string]string{"payment_method": "paypal"},
		RedirectURLs: map[string]string{
			"return_url": p.returnURL,
			"cancel_url": p.cancelURL,
		},
		Transactions: []transaction{{
			Amount:      amount{Total: total.StringFixed(2), Currency: currency},
			Description: description,
			Custom:      orderID,
		}},
	}

	var resp paymentResponse
	err = p.http.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL + "/v1/payments/payment",
		Header:  bearer(token),
		JSON:    req,
		SpanTag: "PayPal.payments.create",
	}, &resp)
	util.GatewayCallsTotal.WithLabelValues("create", outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("paypal create payment: %w", err)
	}

	for _, l := range resp.Links {
		if l.Rel == "approval_url" {
			p.logger.Info("PayPal payment created",
				zap.String("payment_id", resp.ID),
				zap.String("order_id", orderID))
			return &Payment{ID: resp.ID, ApprovalURL: l.Href}, nil
		}
	}
	return nil, ErrNoApprovalURL
}

// ExecutePayment captures an approved payment
func (p *PayPal) ExecutePayment(ctx context.Context, paymentID, payerID string) (*ExecutedPayment, error) {
	ctx, span := util.StartSpan(ctx, "PayPal.ExecutePayment")
	defer span.End()

	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var resp paymentResponse
	err = p.http.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		URL:     p.baseURL + "/v1/payments/payment/" + url.PathEscape(paymentID) + "/execute",
		Header:  bearer(token),
		JSON:    map[string]string{"payer_id": payerID},
		SpanTag: "PayPal.payments.execute",
	}, &resp)
	util.GatewayCallsTotal.WithLabelValues("execute", outcome(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("paypal execute payment: %w", err)
	}
	if len(resp.Transactions) == 0 {
		return nil, fmt.Errorf("paypal execute payment: no transactions in response")
	}

	tx := resp.Transactions[0]
	paid, err := decimal.NewFromString(tx.Amount.Total)
	if err != nil {
		return nil, fmt.Errorf("paypal execute payment: bad amount %q: %w", tx.Amount.Total, err)
	}

	return &ExecutedPayment{
		ID:         resp.ID,
		State:      resp.State,
		PaidAmount: paid,
		Currency:   tx.Amount.Currency,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	basic := base64.StdEncoding.EncodeToString([]byte(p.clientID + ":" + p.clientSecret))
	var resp tokenResponse
	err := p.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		URL:    p.baseURL + "/v1/oauth2/token",
		Header: http.Header{
			"Authorization": []string{"Basic " + basic},
			"Content-Type":  []string{"application/x-www-form-urlencoded"},
		},
		Body:    strings.NewReader(url.Values{"grant_type": []string{"client_credentials"}}.Encode()),
		SpanTag: "PayPal.oauth2.token",
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("paypal token: %w", err)
	}

	p.token = resp.AccessToken
	// refresh a minute early
	p.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
