package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/summitcamp/booking-backend/internal/config"
	"github.com/summitcamp/booking-backend/internal/models"
)

// SnapEnvironmentURLs maps environment names to Snap transaction endpoints
var SnapEnvironmentURLs = map[string]string{
	"sandbox":    "https://app.sandbox.midtrans.com/snap/v1",
	"production": "https://app.midtrans.com/snap/v1",
}

// SnapAPIEnvironmentURLs maps environment names to status query endpoints
var SnapAPIEnvironmentURLs = map[string]string{
	"sandbox":    "https://api.sandbox.midtrans.com/v2",
	"production": "https://api.midtrans.com/v2",
}

// GatewayTransaction is the result of creating a gateway transaction: the
// redirect target the caller is sent to for payment.
type GatewayTransaction struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// GatewayCharge is the authoritative answer of a status query.
type GatewayCharge struct {
	Status models.PaymentStatus
	Amount int64
	PaidAt *time.Time
}

// PaymentGateway isolates all calls to the external payment provider.
// QueryStatus is the single source of truth for payment state: reconcilers
// call it on every attempt instead of trusting caller-supplied statuses,
// because redirect and notification payloads can be spoofed or stale.
type PaymentGateway interface {
	CreateTransaction(ctx context.Context, orderID string, amount int64, description string) (*GatewayTransaction, error)
	QueryStatus(ctx context.Context, orderID string) (*GatewayCharge, error)
	ValidateSignature(notification *models.GatewayNotification) bool
}

// SnapGatewayService talks to a Midtrans-style Snap payment gateway
type SnapGatewayService struct {
	config *config.GatewayConfig
	logger *logrus.Logger
	client *http.Client
}

// NewSnapGatewayService creates a new Snap gateway service
func NewSnapGatewayService(cfg *config.GatewayConfig, logger *logrus.Logger) *SnapGatewayService {
	return &SnapGatewayService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// snapTransactionRequest is the request sent to the Snap transaction endpoint
type snapTransactionRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails []snapItemDetail `json:"item_details,omitempty"`
	Callbacks   struct {
		Finish string `json:"finish,omitempty"`
	} `json:"callbacks"`
}

type snapItemDetail struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// snapStatusResponse is the response of the status query endpoint
type snapStatusResponse struct {
	StatusCode        string `json:"status_code"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	GrossAmount       string `json:"gross_amount"`
	SettlementTime    string `json:"settlement_time"`
	StatusMessage     string `json:"status_message"`
}

// CreateTransaction registers an order with the gateway and returns the
// payment page redirect. Network failures and timeouts surface as
// ErrGatewayUnavailable; a delivered-but-refused request as ErrGatewayRejected.
func (s *SnapGatewayService) CreateTransaction(ctx context.Context, orderID string, amount int64, description string) (*GatewayTransaction, error) {
	if s.config.ServerKey == "" {
		return nil, fmt.Errorf("payment gateway not configured: %w", models.ErrGatewayUnavailable)
	}

	request := &snapTransactionRequest{}
	request.TransactionDetails.OrderID = orderID
	request.TransactionDetails.GrossAmount = amount
	request.Callbacks.Finish = s.config.ReturnURL
	if description != "" {
		request.ItemDetails = []snapItemDetail{{Name: description, Price: amount, Quantity: 1}}
	}

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction request: %w", err)
	}

	endpoint := s.snapURL() + "/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction request: %w", err)
	}
	s.setHeaders(req)

	s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"amount":   amount,
		"endpoint": endpoint,
	}).Info("Creating gateway transaction")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).Error("Failed to call gateway transaction endpoint")
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", models.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: gateway returned status %d", models.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: status %d: %s", models.ErrGatewayRejected, resp.StatusCode, string(body))
	}

	var txn GatewayTransaction
	if err := json.Unmarshal(body, &txn); err != nil {
		return nil, fmt.Errorf("failed to parse transaction response: %w", err)
	}
	if txn.RedirectURL == "" {
		return nil, fmt.Errorf("%w: no redirect url returned", models.ErrGatewayRejected)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     orderID,
		"redirect_url": txn.RedirectURL,
	}).Info("Gateway transaction created")

	return &txn, nil
}

// QueryStatus fetches the authoritative transaction status of an order.
func (s *SnapGatewayService) QueryStatus(ctx context.Context, orderID string) (*GatewayCharge, error) {
	endpoint := fmt.Sprintf("%s/%s/status", s.apiURL(), orderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		// Timeouts are retry-safe: the caller classifies the charge as
		// unknown and leaves the booking untouched.
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", models.ErrGatewayUnavailable, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrUnknownOrder
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", models.ErrGatewayUnavailable, resp.StatusCode, string(body))
	}

	var statusResp snapStatusResponse
	if err := json.Unmarshal(body, &statusResp); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	charge := &GatewayCharge{
		Status: mapTransactionStatus(statusResp.TransactionStatus),
		Amount: parseGrossAmount(statusResp.GrossAmount),
	}
	if charge.Status == models.PaymentStatusSettlement && statusResp.SettlementTime != "" {
		if paidAt, err := time.Parse("2006-01-02 15:04:05", statusResp.SettlementTime); err == nil {
			charge.PaidAt = &paidAt
		}
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":           orderID,
		"transaction_status": statusResp.TransactionStatus,
		"gross_amount":       statusResp.GrossAmount,
	}).Debug("Gateway status fetched")

	return charge, nil
}

// ValidateSignature checks the gateway-issued integrity proof on a
// notification: SHA-512 over order_id + status_code + gross_amount + server key.
func (s *SnapGatewayService) ValidateSignature(notification *models.GatewayNotification) bool {
	if notification == nil || notification.SignatureKey == "" {
		return false
	}
	payload := notification.OrderID + notification.StatusCode + notification.GrossAmount + s.config.ServerKey
	sum := sha512.Sum512([]byte(payload))
	expected := hex.EncodeToString(sum[:])
	return strings.EqualFold(expected, notification.SignatureKey)
}

func (s *SnapGatewayService) setHeaders(req *http.Request) {
	auth := base64.StdEncoding.EncodeToString([]byte(s.config.ServerKey + ":"))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (s *SnapGatewayService) snapURL() string {
	if s.config.SnapURL != "" {
		return s.config.SnapURL
	}
	if url, ok := SnapEnvironmentURLs[s.config.Environment]; ok {
		return url
	}
	return SnapEnvironmentURLs["sandbox"]
}

func (s *SnapGatewayService) apiURL() string {
	if s.config.APIURL != "" {
		return s.config.APIURL
	}
	if url, ok := SnapAPIEnvironmentURLs[s.config.Environment]; ok {
		return url
	}
	return SnapAPIEnvironmentURLs["sandbox"]
}

// mapTransactionStatus folds gateway statuses onto the payment lifecycle.
// Anything unrecognized is unknown, which callers treat as retry-later.
func mapTransactionStatus(status string) models.PaymentStatus {
	switch strings.ToLower(status) {
	case "settlement", "capture":
		return models.PaymentStatusSettlement
	case "deny", "cancel", "failure":
		return models.PaymentStatusFailed
	case "expire":
		return models.PaymentStatusExpired
	case "pending", "authorize":
		return models.PaymentStatusPending
	default:
		return models.PaymentStatusUnknown
	}
}

// parseGrossAmount parses the gateway's "250000.00" style amount string into
// minor currency units. Unparseable amounts come back as 0 and fail the
// amount-integrity check downstream.
func parseGrossAmount(amount string) int64 {
	if amount == "" {
		return 0
	}
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0
	}
	return int64(value + 0.5)
}
