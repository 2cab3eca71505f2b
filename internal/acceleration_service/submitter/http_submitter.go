package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/domain"
	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

// HTTPSubmitter talks to the submission service over its HTTP API.
type HTTPSubmitter struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPSubmitter creates a submitter for the service at baseURL.
func NewHTTPSubmitter(logger *slog.Logger, baseURL, apiKey string, httpClient *http.Client) *HTTPSubmitter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSubmitter{
		logger:     logger.With("submitter", "http"),
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type submitReplacementRequest struct {
	OriginalTxID string `json:"original_tx_id"`
	Action       string `json:"action"`
	Fee          string `json:"fee"` // smallest fee unit, decimal string
}

type submitReplacementResponse struct {
	TxID string `json:"tx_id"`
}

type submitErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// SubmitReplacement asks the submission service to broadcast a replacement.
// Any transport or broadcast failure comes back as *domain.SubmissionError;
// the caller's record is untouched and the request can be retried.
func (s *HTTPSubmitter) SubmitReplacement(ctx context.Context, originalTxID string, action core_domain.ReplacementAction, fee *big.Int) (string, error) {
	s.logger.InfoContext(ctx, "Submitting replacement", "original_tx_id", originalTxID, "action", action, "fee", fee.String())

	reqBody := submitReplacementRequest{
		OriginalTxID: originalTxID,
		Action:       string(action),
		Fee:          fee.String(),
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", &domain.SubmissionError{Err: fmt.Errorf("failed to marshal replacement request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v1/replacements", bytes.NewBuffer(reqBytes))
	if err != nil {
		return "", &domain.SubmissionError{Err: fmt.Errorf("failed to create HTTP request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		s.logger.ErrorContext(ctx, "Replacement submission request failed", "error", err, "original_tx_id", originalTxID)
		return "", &domain.SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.SubmissionError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp submitErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Message != "" {
			s.logger.ErrorContext(ctx, "Submission service rejected replacement",
				"status_code", resp.StatusCode, "message", errResp.Message, "original_tx_id", originalTxID)
			return "", &domain.SubmissionError{Err: fmt.Errorf("submission service returned %d: %s", resp.StatusCode, errResp.Message)}
		}
		s.logger.ErrorContext(ctx, "Submission service rejected replacement",
			"status_code", resp.StatusCode, "original_tx_id", originalTxID)
		return "", &domain.SubmissionError{Err: fmt.Errorf("submission service returned %d", resp.StatusCode)}
	}

	var okResp submitReplacementResponse
	if err := json.Unmarshal(body, &okResp); err != nil {
		return "", &domain.SubmissionError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if okResp.TxID == "" {
		return "", &domain.SubmissionError{Err: fmt.Errorf("submission service returned empty tx_id")}
	}

	s.logger.InfoContext(ctx, "Replacement submitted", "original_tx_id", originalTxID, "replacement_tx_id", okResp.TxID)
	return okResp.TxID, nil
}
