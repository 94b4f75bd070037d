package settlementapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/xclera/matrix-core/src/matrix"
	"github.com/xclera/matrix-core/src/model"
	"go.uber.org/zap"
)

type prepareRequest struct {
	Member      string `json:"member"`
	Referrer    string `json:"referrer,omitempty"`
	TargetLevel *uint8 `json:"targetLevel,omitempty"`
}

type prepareResponse struct {
	IntentID            string `json:"intentId"`
	TargetLevel         uint8  `json:"targetLevel"`
	Recipient           string `json:"recipient"`
	RecipientIsTreasury bool   `json:"recipientIsTreasury"`
	UplineAmount        uint64 `json:"uplineAmount"`
	TreasuryAmount      uint64 `json:"treasuryAmount"`
	TotalAmount         uint64 `json:"totalAmount"`
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	member, err := model.NormalizeWallet(req.Member)
	if err != nil {
		s.writeError(w, err)
		return
	}
	prep := matrix.PrepareRequest{Member: member, TargetLevel: req.TargetLevel}
	if req.Referrer != "" {
		referrer, err := model.NormalizeWallet(req.Referrer)
		if err != nil {
			s.writeError(w, err)
			return
		}
		prep.Referrer = &referrer
	}

	intent, err := s.engine.Prepare(r.Context(), prep)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prepareResponse{
		IntentID:            intent.ID.String(),
		TargetLevel:         intent.TargetLevel,
		Recipient:           string(intent.Recipient),
		RecipientIsTreasury: intent.RecipientIsTreasury,
		UplineAmount:        intent.UplineAmount,
		TreasuryAmount:      intent.TreasuryAmount,
		TotalAmount:         intent.TotalAmount,
	})
}

type confirmRequest struct {
	IntentID string `json:"intentId"`
	Proof    struct {
		Payer     string `json:"payer"`
		Recipient string `json:"recipient"`
		Amount    uint64 `json:"amount"`
		Reference string `json:"reference"`
	} `json:"proof"`
}

type confirmResponse struct {
	NewLevel      uint8  `json:"newLevel"`
	LedgerEntryID string `json:"ledgerEntryId"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	intentID, err := uuid.Parse(req.IntentID)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid intent id")
		return
	}
	payer, err := model.NormalizeWallet(req.Proof.Payer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	recipient, err := model.NormalizeWallet(req.Proof.Recipient)
	if err != nil {
		s.writeError(w, err)
		return
	}

	entry, newLevel, err := s.engine.Confirm(r.Context(), intentID, model.PaymentProof{
		Payer:     payer,
		Recipient: recipient,
		Amount:    req.Proof.Amount,
		Reference: req.Proof.Reference,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{
		NewLevel:      newLevel,
		LedgerEntryID: entry.ID.String(),
	})
}

type failRequest struct {
	IntentID string `json:"intentId"`
}

// handleFail abandons a pending intent, e.g. when the member cancelled the
// payment in the wallet.
func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req failRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	intentID, err := uuid.Parse(req.IntentID)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "invalid intent id")
		return
	}
	if err := s.engine.Fail(r.Context(), intentID); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(model.IntentStatusFailed)})
}

type memberResponse struct {
	Wallet       string    `json:"wallet"`
	Referrer     string    `json:"referrer,omitempty"`
	Level        uint8     `json:"level"`
	RegisteredAt time.Time `json:"registeredAt"`
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	wallet, err := model.NormalizeWallet(chi.URLParam(r, "wallet"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	member, err := s.store.GetMember(r.Context(), wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := memberResponse{
		Wallet:       string(member.Wallet),
		Level:        member.Level,
		RegisteredAt: member.RegisteredAt,
	}
	if member.Referrer != nil {
		resp.Referrer = string(*member.Referrer)
	}
	writeJSON(w, http.StatusOK, resp)
}

type intentResponse struct {
	IntentID            string    `json:"intentId"`
	TargetLevel         uint8     `json:"targetLevel"`
	Recipient           string    `json:"recipient"`
	RecipientIsTreasury bool      `json:"recipientIsTreasury"`
	TotalAmount         uint64    `json:"totalAmount"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"createdAt"`
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	wallet, err := model.NormalizeWallet(chi.URLParam(r, "wallet"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	intent, err := s.store.PendingIntent(r.Context(), wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intentResponse{
		IntentID:            intent.ID.String(),
		TargetLevel:         intent.TargetLevel,
		Recipient:           string(intent.Recipient),
		RecipientIsTreasury: intent.RecipientIsTreasury,
		TotalAmount:         intent.TotalAmount,
		Status:              string(intent.Status),
		CreatedAt:           intent.CreatedAt,
	})
}

type earningEntry struct {
	Member    string    `json:"member"`
	Level     uint8     `json:"level"`
	Amount    uint64    `json:"amount"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleGetEarnings(w http.ResponseWriter, r *http.Request) {
	wallet, err := model.NormalizeWallet(chi.URLParam(r, "wallet"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.store.LedgerEntriesFor(r.Context(), wallet, 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]earningEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, earningEntry{
			Member:    string(e.Member),
			Level:     e.Level,
			Amount:    e.UplineAmount,
			Reference: e.Reference,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// writeError maps the settlement error taxonomy onto HTTP statuses with
// stable machine-readable codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidWallet):
		writeErrorCode(w, http.StatusBadRequest, "invalid_wallet", err.Error())
	case errors.Is(err, model.ErrUnknownLevel):
		writeErrorCode(w, http.StatusBadRequest, "unknown_level", err.Error())
	case errors.Is(err, matrix.ErrInvalidLevelTransition):
		writeErrorCode(w, http.StatusBadRequest, "invalid_level_transition", err.Error())
	case errors.Is(err, matrix.ErrUnknownReferrer):
		writeErrorCode(w, http.StatusBadRequest, "unknown_referrer", err.Error())
	case errors.Is(err, matrix.ErrAlreadyRegistered):
		writeErrorCode(w, http.StatusConflict, "already_registered", err.Error())
	case errors.Is(err, matrix.ErrIntentAlreadyPending):
		writeErrorCode(w, http.StatusConflict, "intent_already_pending", err.Error())
	case errors.Is(err, matrix.ErrIntentNotPending):
		writeErrorCode(w, http.StatusConflict, "intent_not_pending", err.Error())
	case errors.Is(err, matrix.ErrIntentNotFound):
		writeErrorCode(w, http.StatusNotFound, "intent_not_found", err.Error())
	case errors.Is(err, matrix.ErrMemberNotFound):
		writeErrorCode(w, http.StatusNotFound, "member_not_found", err.Error())
	case errors.Is(err, matrix.ErrProofMismatch):
		writeErrorCode(w, http.StatusUnprocessableEntity, "proof_mismatch", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeErrorCode(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
