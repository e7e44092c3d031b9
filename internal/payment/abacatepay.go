// Package payment is a thin AbacatePay client for one-time credit purchases.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the AbacatePay v1 API root.
const DefaultBaseURL = "https://api.abacatepay.com/v1"

const (
	productExternalID = "quantoda-premium"
	productName       = "QuantoDá? Premium"
	productPriceCents = 2990
	statusPaid        = "PAID"
	mockBillingPrefix = "mock-bill-"
	mockCheckoutURL   = "https://abacatepay.com/pay/mock"
)

// Checkout is a created billing the user must pay.
type Checkout struct {
	BillingID string `json:"billingId"`
	URL       string `json:"url"`
	PixCode   string `json:"pixCode,omitempty"`
	Mock      bool   `json:"mock"`
}

// Client talks to AbacatePay. Without an API key it runs in mock mode:
// checkouts get a mock billing id and every billing reads as paid.
type Client struct {
	baseURL    string
	apiKey     string
	returnURL  string
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, apiKey, returnURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		returnURL:  returnURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
}

// MockMode reports whether the client runs without an API key.
func (c *Client) MockMode() bool {
	return c.apiKey == ""
}

type product struct {
	ExternalID  string `json:"externalId"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Price       int    `json:"price"`
	Description string `json:"description"`
}

type customer struct {
	Email string `json:"email"`
}

type createBillingRequest struct {
	Frequency     string    `json:"frequency"`
	Methods       []string  `json:"methods"`
	Products      []product `json:"products"`
	ReturnURL     string    `json:"returnUrl"`
	CompletionURL string    `json:"completionUrl"`
	Customer      *customer `json:"customer,omitempty"`
}

type billing struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Status string `json:"status"`
	Pix    *struct {
		Code string `json:"code"`
	} `json:"pix,omitempty"`
}

type createBillingResponse struct {
	Data  *billing `json:"data"`
	Error string   `json:"error"`
}

type listBillingResponse struct {
	Data  []billing `json:"data"`
	Error string    `json:"error"`
}

// CreateCheckout creates a one-time billing for the premium credit pack.
func (c *Client) CreateCheckout(ctx context.Context, email string) (*Checkout, error) {
	if c.MockMode() {
		return &Checkout{
			BillingID: mockBillingPrefix + strconv.FormatInt(c.now().UnixMilli(), 10),
			URL:       mockCheckoutURL,
			Mock:      true,
		}, nil
	}

	reqBody := createBillingRequest{
		Frequency: "ONE_TIME",
		Methods:   []string{"PIX", "CREDIT_CARD"},
		Products: []product{{
			ExternalID:  productExternalID,
			Name:        productName,
			Quantity:    1,
			Price:       productPriceCents,
			Description: "Pacote de análises com insights de IA.",
		}},
		ReturnURL:     c.returnURL,
		CompletionURL: c.returnURL,
	}
	if email != "" {
		reqBody.Customer = &customer{Email: email}
	}

	var resp createBillingResponse
	if err := c.do(ctx, http.MethodPost, "/billing/create", nil, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("CreateCheckout: %w", err)
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return nil, fmt.Errorf("CreateCheckout: response has no billing")
	}

	out := &Checkout{BillingID: resp.Data.ID, URL: resp.Data.URL}
	if resp.Data.Pix != nil {
		out.PixCode = resp.Data.Pix.Code
	}
	return out, nil
}

// CheckStatus reports whether billingID has been paid.
func (c *Client) CheckStatus(ctx context.Context, billingID string) (bool, error) {
	if billingID == "" {
		return false, fmt.Errorf("CheckStatus: empty billing id")
	}
	if c.MockMode() {
		return true, nil
	}

	var resp listBillingResponse
	query := url.Values{"id": {billingID}}
	if err := c.do(ctx, http.MethodGet, "/billing/list", query, nil, &resp); err != nil {
		return false, fmt.Errorf("CheckStatus: %w", err)
	}

	for _, b := range resp.Data {
		if b.ID == billingID {
			return b.Status == statusPaid, nil
		}
	}
	return false, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, res.StatusCode, bytes.TrimSpace(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
