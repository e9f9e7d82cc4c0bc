// Package mpesa provides the Daraja STK push client and callback types.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Token lifetime is one hour; cache slightly less to stay safe.
const tokenCacheTTL = 3500 * time.Second

const timestampLayout = "20060102150405"

// Config holds the Daraja API credentials and endpoints.
type Config struct {
	BaseURL        string // e.g. "https://sandbox.safaricom.co.ke"
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// Client calls the Daraja OAuth and STK push endpoints.
type Client struct {
	config Config
	http   *http.Client
	cache  TokenCache
	logger *zap.Logger
	now    func() time.Time
}

// NewClient creates a Daraja client.
func NewClient(config Config, cache TokenCache, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// Password builds the STK push password: base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey string, t time.Time) (password, timestamp string) {
	timestamp = t.Format(timestampLayout)
	password = base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
	return password, timestamp
}

// AccessToken returns a valid OAuth token, reusing the cached one when possible.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	token, err := c.cache.Get(ctx)
	if err != nil {
		c.logger.Warn("token cache read failed", zap.Error(err))
	}
	if token != "" {
		return token, nil
	}

	url := c.config.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.config.ConsumerKey, c.config.ConsumerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("access token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("access token request failed: status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("access token response was empty")
	}

	if err := c.cache.Set(ctx, body.AccessToken, tokenCacheTTL); err != nil {
		c.logger.Warn("token cache write failed", zap.Error(err))
	}

	return body.AccessToken, nil
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ErrorMessage        string `json:"errorMessage"`
}

// STKPush prompts the payer's phone to authorize the charge and returns the
// provider's checkout request id on success.
func (c *Client) STKPush(ctx context.Context, phoneNumber string, amount int64, reference string) (string, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return "", err
	}

	password, timestamp := Password(c.config.ShortCode, c.config.Passkey, c.now())
	payload := stkPushRequest{
		BusinessShortCode: c.config.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            phoneNumber,
		PartyB:            c.config.ShortCode,
		PhoneNumber:       phoneNumber,
		CallBackURL:       c.config.CallbackURL,
		AccountReference:  reference,
		TransactionDesc:   "Hotspot access",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := c.config.BaseURL + "/mpesa/stkpush/v1/processrequest"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("stk push request failed: %w", err)
	}
	defer resp.Body.Close()

	var result stkPushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode stk push response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || result.ResponseCode != "0" {
		desc := result.ResponseDescription
		if desc == "" {
			desc = result.ErrorMessage
		}
		return "", fmt.Errorf("stk push rejected: status %d: %s", resp.StatusCode, desc)
	}
	if result.CheckoutRequestID == "" {
		return "", fmt.Errorf("stk push response missing CheckoutRequestID")
	}

	c.logger.Info("stk push initiated",
		zap.String("phone", phoneNumber),
		zap.Int64("amount", amount),
		zap.String("checkout_request_id", result.CheckoutRequestID),
	)

	return result.CheckoutRequestID, nil
}
