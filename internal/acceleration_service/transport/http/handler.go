package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/nimbuswallet/golang_services/internal/acceleration_service/app"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/domain"
	"github.com/nimbuswallet/golang_services/internal/acceleration_service/repository"
	"github.com/nimbuswallet/golang_services/internal/core_domain"
)

// AccelerationHandler exposes the transaction acceleration API.
type AccelerationHandler struct {
	controller *app.LifecycleController
	logger     *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
}

// NewAccelerationHandler creates a new AccelerationHandler.
func NewAccelerationHandler(controller *app.LifecycleController, logger *slog.Logger, validate *validator.Validate) *AccelerationHandler {
	return &AccelerationHandler{
		controller: controller,
		logger:     logger.With("handler", "acceleration"),
		validate:   validate,
		now:        time.Now,
	}
}

// RegisterRoutes mounts the API onto r.
func (h *AccelerationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/transactions", h.HandleRegisterTransaction)
	r.Get("/transactions/{txID}", h.HandleGetTransaction)
	r.Get("/transactions/{txID}/eligibility", h.HandleGetEligibility)
	r.Post("/transactions/{txID}/speedup", h.HandleSpeedUp)
	r.Post("/transactions/{txID}/cancel", h.HandleCancel)
}

func (h *AccelerationHandler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
}

// HandleRegisterTransaction starts tracking a freshly broadcast transfer.
func (h *AccelerationHandler) HandleRegisterTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	var req RegisterTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode register request", "error", err)
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		logger.WarnContext(ctx, "Register request failed validation", "error", err)
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	fee, ok := new(big.Int).SetString(req.Fee, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "fee must be a decimal integer string"})
		return
	}

	direction := core_domain.Direction(req.Direction)
	if direction == "" {
		direction = core_domain.DirectionSend
	}

	tx := &core_domain.Transaction{
		ID:          req.TxID,
		Chain:       core_domain.Chain(req.Chain),
		Direction:   direction,
		Fee:         fee,
		SubmittedAt: req.SubmittedAt,
	}
	if err := h.controller.Register(ctx, tx); err != nil {
		h.writeDomainError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toTransactionResponse(tx))
}

// HandleGetTransaction returns the current record snapshot.
func (h *AccelerationHandler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	txID := chi.URLParam(r, "txID")
	tx, err := h.controller.Get(ctx, txID)
	if err != nil {
		h.writeDomainError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toTransactionResponse(tx))
}

// HandleGetEligibility returns the replacement verdict and, when eligible,
// the minimum valid replacement fee. Read-only and lock-free; the verdict
// is re-checked when a request is actually submitted.
func (h *AccelerationHandler) HandleGetEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	txID := chi.URLParam(r, "txID")
	verdict, minFee, err := h.controller.Eligibility(ctx, txID)
	if err != nil {
		h.writeDomainError(w, logger, err)
		return
	}

	resp := EligibilityResponse{
		Eligible:   verdict.Eligible,
		Reason:     string(verdict.Reason),
		CanSpeedUp: verdict.CanSpeedUp,
		CanCancel:  verdict.CanCancel,
	}
	if minFee != nil {
		resp.MinimumFee = minFee.String()
		if tx, getErr := h.controller.Get(ctx, txID); getErr == nil {
			if cap, capErr := domain.CapabilitiesFor(tx.Chain); capErr == nil {
				resp.FeeUnit = cap.FeeUnit
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSpeedUp requests a fee-bump replacement.
func (h *AccelerationHandler) HandleSpeedUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	txID := chi.URLParam(r, "txID")

	var req SpeedUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "Failed to decode speed-up request", "error", err, "tx_id", txID)
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed: " + err.Error()})
		return
	}

	proposedFee, ok := new(big.Int).SetString(req.ProposedFee, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "proposed_fee must be a decimal integer string"})
		return
	}

	tx, err := h.controller.RequestSpeedUp(ctx, txID, proposedFee)
	if err != nil {
		h.writeDomainError(w, logger, err)
		return
	}

	logger.InfoContext(ctx, "Speed-up accepted", "tx_id", txID, "replacement_tx_id", *tx.ReplacementID)
	writeJSON(w, http.StatusAccepted, h.toTransactionResponse(tx))
}

// HandleCancel requests a cancellation replacement. No body: the fee is
// chain-mandated, not caller-chosen.
func (h *AccelerationHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)
	txID := chi.URLParam(r, "txID")

	tx, err := h.controller.RequestCancel(ctx, txID)
	if err != nil {
		h.writeDomainError(w, logger, err)
		return
	}

	logger.InfoContext(ctx, "Cancel accepted", "tx_id", txID, "replacement_tx_id", *tx.ReplacementID)
	writeJSON(w, http.StatusAccepted, h.toTransactionResponse(tx))
}

func (h *AccelerationHandler) toTransactionResponse(tx *core_domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		TxID:          tx.ID,
		Chain:         string(tx.Chain),
		Status:        string(tx.Status),
		Fee:           tx.Fee.String(),
		SubmittedAt:   tx.SubmittedAt,
		Elapsed:       domain.FormatElapsed(tx.SubmittedAt, h.now()),
		ReplacementID: tx.ReplacementID,
	}
	if cap, err := domain.CapabilitiesFor(tx.Chain); err == nil {
		resp.FeeUnit = cap.FeeUnit
	}
	return resp
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Policy
// rejections carry their reason verbatim; fee rejections carry the computed
// minimum; submission failures are flagged retryable.
func (h *AccelerationHandler) writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var unknownChainErr *domain.UnknownChainError
	var ineligibleErr *domain.IneligibleError
	var feeErr *domain.FeeTooLowError
	var subErr *domain.SubmissionError

	switch {
	case errors.Is(err, repository.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, ErrorResponse{Error: "transaction not found"})
	case errors.Is(err, repository.ErrAlreadyTracked):
		writeError(w, http.StatusConflict, ErrorResponse{Error: "transaction already tracked"})
	case errors.As(err, &unknownChainErr):
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: unknownChainErr.Error()})
	case errors.Is(err, app.ErrNotOutgoing) || errors.Is(err, app.ErrMissingFee):
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrReplacementInProgress):
		writeError(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.As(err, &ineligibleErr):
		writeError(w, http.StatusConflict, ErrorResponse{
			Error:  ineligibleErr.Error(),
			Reason: string(ineligibleErr.Reason),
		})
	case errors.As(err, &feeErr):
		writeError(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:      feeErr.Error(),
			MinimumFee: feeErr.Minimum.String(),
		})
	case errors.As(err, &subErr):
		writeError(w, http.StatusBadGateway, ErrorResponse{
			Error:     "replacement submission failed, please try again",
			Retryable: true,
		})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		logger.Error("Unhandled error in acceleration handler", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	writeJSON(w, status, body)
}
