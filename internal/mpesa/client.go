package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	// accountRefMaxLen is the provider's limit on AccountReference.
	accountRefMaxLen = 12

	pushTimeout = 30 * time.Second

	transactionType = "CustomerPayBillOnline"
)

// Client talks to the Daraja STK push API. It owns a token cache and a
// bounded-timeout HTTP client; provider calls never hang indefinitely.
type Client struct {
	cfg        Config
	tokens     *TokenCache
	httpClient *http.Client
	nowFunc    func() time.Time
}

// NewClient builds a client for the configured environment.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		tokens:     NewTokenCache(cfg),
		httpClient: &http.Client{Timeout: pushTimeout},
		nowFunc:    time.Now,
	}
}

// Token exposes the cached access token; used by the auth connectivity probe.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

// InitiateSTKPush normalizes the payer phone, signs the request and submits
// it. A nil error means the provider accepted the request for asynchronous
// processing; the payment itself has NOT happened yet.
//
// Failure modes: ErrInvalidPhone, *AuthError, ErrProviderUnavailable (wrapped
// transport errors), *RejectedError (synchronous provider decline).
func (c *Client) InitiateSTKPush(ctx context.Context, phone string, amount int64, accountRef string) (*STKPushResponse, error) {
	formattedPhone, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	password, timestamp := Password(c.cfg.ShortCode, c.cfg.Passkey, c.nowFunc())

	ref := accountRef
	if len(ref) > accountRefMaxLen {
		ref = ref[:accountRefMaxLen]
	}

	reqBody := STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            amount,
		PartyA:            formattedPhone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       formattedPhone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  ref,
		TransactionDesc:   fmt.Sprintf("Payment for order %s", accountRef),
	}

	var out STKPushResponse
	if err := c.post(ctx, stkPushPath, token, reqBody, &out); err != nil {
		return nil, err
	}

	if out.ResponseCode != "0" {
		return nil, &RejectedError{Code: out.ResponseCode, Description: out.ResponseDescription}
	}
	return &out, nil
}

// QueryTransaction asks the provider for the current state of a checkout
// request. Used for manual reconciliation when a callback never arrived.
func (c *Client) QueryTransaction(ctx context.Context, checkoutID string) (*QueryResponse, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	password, timestamp := Password(c.cfg.ShortCode, c.cfg.Passkey, c.nowFunc())

	reqBody := QueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutID,
	}
	var out QueryResponse
	if err := c.post(ctx, stkQueryPath, token, reqBody, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.baseURL()+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if jerr := json.Unmarshal(respBody, &apiErr); jerr == nil && (apiErr.message() != "" || apiErr.code() != "") {
			return &RejectedError{Code: apiErr.code(), Description: apiErr.message()}
		}
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrProviderUnavailable, err)
	}
	return nil
}
