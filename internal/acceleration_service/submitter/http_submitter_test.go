package submitter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/domain"
	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPSubmitter_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/replacements", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var req submitReplacementRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tx-1", req.OriginalTxID)
		assert.Equal(t, "speed_up", req.Action)
		assert.Equal(t, "110", req.Fee)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(submitReplacementResponse{TxID: "tx-2"})
	}))
	defer server.Close()

	s := NewHTTPSubmitter(discardLogger(), server.URL, "test-key", server.Client())
	newTxID, err := s.SubmitReplacement(context.Background(), "tx-1", core_domain.ActionSpeedUp, big.NewInt(110))
	require.NoError(t, err)
	assert.Equal(t, "tx-2", newTxID)
}

func TestHTTPSubmitter_BroadcastFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(submitErrorResponse{Status: 502, Message: "mempool rejected replacement"})
	}))
	defer server.Close()

	s := NewHTTPSubmitter(discardLogger(), server.URL, "", server.Client())
	_, err := s.SubmitReplacement(context.Background(), "tx-1", core_domain.ActionCancel, big.NewInt(110))

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Contains(t, subErr.Error(), "mempool rejected replacement")
}

func TestHTTPSubmitter_EmptyTxIDRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(submitReplacementResponse{})
	}))
	defer server.Close()

	s := NewHTTPSubmitter(discardLogger(), server.URL, "", server.Client())
	_, err := s.SubmitReplacement(context.Background(), "tx-1", core_domain.ActionSpeedUp, big.NewInt(110))

	var subErr *domain.SubmissionError
	require.ErrorAs(t, err, &subErr)
}
