// Package payment verifies gateway transaction ids against the external
// payment provider over its OAuth-protected REST API.
package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/example/marketplace/pkg/config"
	"github.com/example/marketplace/pkg/models"
	"go.uber.org/zap"
)

// GatewayVerifier checks an order/capture id with the provider. A client
// credentials token is fetched lazily and reused until close to expiry.
type GatewayVerifier struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGatewayVerifier(cfg *config.PaymentConfig, logger *zap.Logger) *GatewayVerifier {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &GatewayVerifier{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

func (v *GatewayVerifier) token(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.accessToken != "" && time.Until(v.tokenExpiry) > time.Minute {
		return v.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(v.clientID, v.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: gateway returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	v.accessToken = body.AccessToken
	v.tokenExpiry = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return v.accessToken, nil
}

// Verify fetches the transaction from the gateway and accepts it only when
// the gateway reports it completed.
func (v *GatewayVerifier) Verify(ctx context.Context, transactionID string) (*models.PaymentResult, error) {
	token, err := v.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v2/checkout/orders/%s", v.baseURL, url.PathEscape(transactionID)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("transaction %s not found at gateway", transactionID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify request: gateway returned %d", resp.StatusCode)
	}

	var body struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Payer  struct {
			EmailAddress string `json:"email_address"`
		} `json:"payer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}

	if body.Status != "COMPLETED" && body.Status != "APPROVED" {
		return nil, fmt.Errorf("transaction %s has status %s", transactionID, body.Status)
	}

	v.logger.Info("payment verified",
		zap.String("transaction_id", body.ID),
		zap.String("status", body.Status))

	return &models.PaymentResult{
		TransactionID: body.ID,
		Status:        body.Status,
		PayerEmail:    body.Payer.EmailAddress,
	}, nil
}
