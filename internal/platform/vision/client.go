// Package vision is the HTTP client of the slip-reading vision service.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pawnmarket-contract-engine/internal/config"
	"github.com/pawnmarket-contract-engine/internal/domain/verification"
)

const verifyPath = "/v1/slips/verify"

// maxResponseBytes bounds what is kept as the raw collaborator response.
const maxResponseBytes = 64 << 10

type verifyRequest struct {
	ImageURL       string `json:"image_url"`
	ExpectedAmount string `json:"expected_amount"`
}

// verifyResponse is what the service read from the image. It only reports
// facts; the classification is computed here at zero tolerance.
type verifyResponse struct {
	IsTransferSlip bool                `json:"is_transfer_slip"`
	DetectedAmount decimal.NullDecimal `json:"detected_amount"`
	Confidence     float64             `json:"confidence"`
}

// Client implements verification.Verifier over JSON/HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ verification.Verifier = (*Client)(nil)

func NewClient(logger *slog.Logger, cfg *config.VisionConfig) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Verify asks the vision service to read the slip at imageURL. It returns an
// error only when the service could not be reached or answered garbage.
func (c *Client) Verify(ctx context.Context, imageURL string, expected decimal.Decimal) (verification.Result, error) {
	body, err := json.Marshal(verifyRequest{ImageURL: imageURL, ExpectedAmount: expected.StringFixed(2)})
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+verifyPath, bytes.NewReader(body))
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to call vision service: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return verification.Result{}, fmt.Errorf("failed to read vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return verification.Result{}, fmt.Errorf("vision service returned status %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return verification.Result{}, fmt.Errorf("failed to decode vision response: %w", err)
	}

	result := verification.Result{
		Classification: verification.Classify(expected, out.DetectedAmount, out.IsTransferSlip),
		DetectedAmount: out.DetectedAmount,
		Confidence:     out.Confidence,
		Raw:            json.RawMessage(raw),
	}
	c.logger.Debug("Slip read by vision service",
		"classification", string(result.Classification),
		"confidence", result.Confidence)
	return result, nil
}
