package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-subscription-bot/internal/config"
	"telegram-subscription-bot/internal/domain/model"
	"telegram-subscription-bot/internal/domain/ports/adapter"
	"telegram-subscription-bot/internal/infra/logging"
)

var _ adapter.PaymentGateway = (*DarajaGateway)(nil)

// DarajaGateway implements PaymentGateway against the Safaricom Daraja API
// using direct HTTP calls. Access tokens are cached until shortly before
// expiry; all calls share one 30s-timeout client.
type DarajaGateway struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passKey        string
	callbackURL    string
	client         *http.Client
	log            zerolog.Logger
	dev            bool

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewDarajaGateway(cfg config.MpesaConfig, log *zerolog.Logger, dev bool) *DarajaGateway {
	return &DarajaGateway{
		baseURL:        cfg.BaseURL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.BusinessShortCode,
		passKey:        cfg.PassKey,
		callbackURL:    cfg.CallbackURL,
		client:         &http.Client{Timeout: 30 * time.Second},
		log:            log.With().Str("component", "daraja").Logger(),
		dev:            dev,
	}
}

func (g *DarajaGateway) Name() string { return "mpesa-daraja" }

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type stkPushRequest struct {
	BusinessShortCode string  `json:"BusinessShortCode"`
	Password          string  `json:"Password"`
	Timestamp         string  `json:"Timestamp"`
	TransactionType   string  `json:"TransactionType"`
	Amount            float64 `json:"Amount"`
	PartyA            string  `json:"PartyA"`
	PartyB            string  `json:"PartyB"`
	PhoneNumber       string  `json:"PhoneNumber"`
	CallBackURL       string  `json:"CallBackURL"`
	AccountReference  string  `json:"AccountReference"`
	TransactionDesc   string  `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// accessTokenFor returns a cached OAuth token, refreshing it when it is
// within 60 seconds of expiry.
func (g *DarajaGateway) accessTokenFor(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.accessToken != "" && time.Now().Before(g.tokenExpiry) {
		return g.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create auth request: %w", err)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(g.consumerKey + ":" + g.consumerSecret))
	req.Header.Set("Authorization", "Basic "+creds)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request access token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read auth response: %w", err)
	}

	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return "", fmt.Errorf("failed to unmarshal auth response: %w, body: %s", err, string(body))
	}
	if auth.AccessToken == "" {
		return "", fmt.Errorf("no access token received (status %d)", resp.StatusCode)
	}

	expiresIn, err := strconv.Atoi(auth.ExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 3600
	}
	g.accessToken = auth.AccessToken
	// Refresh 60s early so in-flight requests never carry a dying token.
	g.tokenExpiry = time.Now().Add(time.Duration(expiresIn)*time.Second - time.Minute)

	g.log.Info().Msg("access token refreshed")
	return g.accessToken, nil
}

func (g *DarajaGateway) postJSON(ctx context.Context, endpoint string, payload, out interface{}) error {
	token, err := g.accessTokenFor(ctx)
	if err != nil {
		return err
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	return nil
}

// InitiatePayment pushes an STK prompt to the customer's phone.
func (g *DarajaGateway) InitiatePayment(ctx context.Context, phone string, amount float64, accountRef, description string) (adapter.InitiationResult, error) {
	if msg := validatePaymentRequest(phone, amount, accountRef); msg != "" {
		return adapter.InitiationResult{Success: false, Message: msg, ErrorCode: "VALIDATION_ERROR"}, nil
	}
	if description == "" {
		description = "Payment for " + accountRef
	}

	timestamp := darajaTimestamp(time.Now())
	normalized := model.NormalizePhoneNumber(phone)
	push := stkPushRequest{
		BusinessShortCode: g.shortCode,
		Password:          darajaPassword(g.shortCode, g.passKey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            amount,
		PartyA:            normalized,
		PartyB:            g.shortCode,
		PhoneNumber:       normalized,
		CallBackURL:       g.callbackURL,
		AccountReference:  accountRef,
		TransactionDesc:   description,
	}

	g.log.Info().
		Str("phone", logging.RedactPhone(normalized, g.dev)).
		Float64("amount", amount).
		Str("account_ref", accountRef).
		Msg("initiating STK push")

	var resp stkPushResponse
	if err := g.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", push, &resp); err != nil {
		return adapter.InitiationResult{}, err
	}

	if resp.ResponseCode != "0" {
		g.log.Warn().
			Str("response_code", resp.ResponseCode).
			Str("description", resp.ResponseDescription).
			Msg("STK push rejected")
		msg := resp.ResponseDescription
		if msg == "" {
			msg = "Payment request failed"
		}
		return adapter.InitiationResult{Success: false, Message: msg, ErrorCode: "STK_PUSH_FAILED"}, nil
	}

	msg := resp.CustomerMessage
	if msg == "" {
		msg = "Payment request sent successfully"
	}
	return adapter.InitiationResult{
		Success:           true,
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		Message:           msg,
	}, nil
}

// VerifyTransaction queries the STK push result for a checkout request.
// Result code 0 means paid; 1032 cancelled, 1037 timed out, 1001
// insufficient funds and any other nonzero code are all definitive failures.
func (g *DarajaGateway) VerifyTransaction(ctx context.Context, checkoutRequestID string) (adapter.VerificationResult, error) {
	if checkoutRequestID == "" {
		return adapter.VerificationResult{
			Success:   false,
			State:     adapter.TransactionStateFailed,
			Message:   "Checkout request ID is required",
			ErrorCode: "INVALID_REQUEST_ID",
		}, nil
	}

	timestamp := darajaTimestamp(time.Now())
	query := stkQueryRequest{
		BusinessShortCode: g.shortCode,
		Password:          darajaPassword(g.shortCode, g.passKey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp stkQueryResponse
	if err := g.postJSON(ctx, "/mpesa/stkpushquery/v1/query", query, &resp); err != nil {
		return adapter.VerificationResult{
			Success:   false,
			State:     adapter.TransactionStatePending,
			Message:   "Failed to verify transaction status",
			ErrorCode: "VERIFICATION_ERROR",
		}, err
	}

	if resp.ResponseCode != "0" {
		msg := resp.ResponseDescription
		if msg == "" {
			msg = "Failed to verify transaction status"
		}
		return adapter.VerificationResult{
			Success:   false,
			State:     adapter.TransactionStatePending,
			Message:   msg,
			ErrorCode: "VERIFICATION_QUERY_FAILED",
		}, nil
	}

	resultCode, _ := strconv.Atoi(resp.ResultCode)
	switch resultCode {
	case 0:
		return adapter.VerificationResult{
			Success: true,
			State:   adapter.TransactionStateCompleted,
			Message: "Transaction completed successfully",
		}, nil
	case 1032:
		return adapter.VerificationResult{
			Success: true,
			State:   adapter.TransactionStateFailed,
			Message: "Transaction was cancelled by user",
		}, nil
	case 1037:
		return adapter.VerificationResult{
			Success: true,
			State:   adapter.TransactionStateFailed,
			Message: "Transaction timeout - user did not complete payment",
		}, nil
	case 1001:
		return adapter.VerificationResult{
			Success: true,
			State:   adapter.TransactionStateFailed,
			Message: "Insufficient funds in account",
		}, nil
	default:
		msg := resp.ResultDesc
		if msg == "" {
			msg = "Transaction failed"
		}
		return adapter.VerificationResult{
			Success: true,
			State:   adapter.TransactionStateFailed,
			Message: msg,
		}, nil
	}
}

// GetTransactionStatus retries VerifyTransaction with capped exponential
// backoff until the provider gives a definitive answer or attempts run out.
func (g *DarajaGateway) GetTransactionStatus(ctx context.Context, checkoutRequestID string, maxAttempts int) adapter.VerificationResult {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	last := adapter.VerificationResult{
		Success:   false,
		State:     adapter.TransactionStatePending,
		Message:   "Transaction status unknown after retries",
		ErrorCode: "UNKNOWN_STATUS",
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := g.VerifyTransaction(ctx, checkoutRequestID)
		if err == nil && result.Success &&
			(result.State == adapter.TransactionStateCompleted || result.State == adapter.TransactionStateFailed) {
			return result
		}
		if err == nil {
			last = result
		}

		if attempt < maxAttempts {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			if delay > 5*time.Second {
				delay = 5 * time.Second
			}
			g.log.Debug().
				Str("checkout_request_id", checkoutRequestID).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("verification inconclusive, retrying")
			select {
			case <-ctx.Done():
				return last
			case <-time.After(delay):
			}
		}
	}
	return last
}

func validatePaymentRequest(phone string, amount float64, accountRef string) string {
	if phone == "" {
		return "Phone number is required"
	}
	if !model.ValidPhoneNumber(phone) {
		return "Invalid Kenyan phone number format"
	}
	if amount < 1 {
		return "Minimum payment amount is KES 1"
	}
	if accountRef == "" {
		return "Account reference is required"
	}
	if len(accountRef) > 12 {
		return "Account reference must be 12 characters or less"
	}
	return ""
}

// darajaTimestamp formats t as YYYYMMDDHHMMSS, the format the API expects.
func darajaTimestamp(t time.Time) string {
	return t.Format("20060102150405")
}

func darajaPassword(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}
