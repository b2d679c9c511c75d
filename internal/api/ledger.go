package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/h-ibrahim365/ProvanceProtocol/internal/logging"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/service"
)

type LedgerHandler struct {
	service      *service.LedgerService
	maxBodyBytes int64
}

func NewLedgerHandler(svc *service.LedgerService, maxBodyBytes int64) *LedgerHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 8 << 20
	}
	return &LedgerHandler{service: svc, maxBodyBytes: maxBodyBytes}
}

func (h *LedgerHandler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("POST /v1/ledger/entries", h.handleAppend)
	mux.HandleFunc("GET /v1/ledger/entries/{id}", h.handleGetEntry)
	mux.HandleFunc("GET /v1/ledger/head", h.handleHead)
	mux.HandleFunc("POST /v1/ledger/verify", h.handleVerify)
	return mux
}

func (h *LedgerHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Health(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logging.AddField(r.Context(), "op", "health")
	writeJSON(w, http.StatusOK, resp)
}

func (h *LedgerHandler) handleAppend(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.Header.Get("X-Ledger-Write-Token"))
	if !h.service.VerifyWriteToken(token) {
		writeJSON(w, http.StatusUnauthorized, protocol.ErrorResponse{Error: protocol.ErrorBody{Code: "UNAUTHORIZED", Message: "invalid write token", Retryable: false}})
		return
	}
	var req protocol.LedgerAppendRequest
	if err := decodeJSONLimited(r, h.maxBodyBytes, &req); err != nil {
		h.writeError(w, r, service.NewAppError(http.StatusBadRequest, "BAD_REQUEST", err.Error(), false, err))
		return
	}
	resp, err := h.service.Append(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logging.AddField(r.Context(), "op", "ledger_append")
	logging.AddField(r.Context(), "entry_id", resp.Entry.ID)
	logging.AddField(r.Context(), "sequence", resp.Entry.Sequence)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *LedgerHandler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		h.writeError(w, r, service.NewAppError(http.StatusBadRequest, "BAD_REQUEST", "missing entry id", false, nil))
		return
	}
	entry, found, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, protocol.ErrorResponse{Error: protocol.ErrorBody{Code: "NOT_FOUND", Message: "entry not found", Retryable: false}})
		return
	}
	logging.AddField(r.Context(), "op", "ledger_get_entry")
	logging.AddField(r.Context(), "entry_id", id)
	writeJSON(w, http.StatusOK, entry)
}

func (h *LedgerHandler) handleHead(w http.ResponseWriter, r *http.Request) {
	entry, found, err := h.service.Head(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logging.AddField(r.Context(), "op", "ledger_head")
	resp := protocol.HeadResponse{Found: found}
	if found {
		resp.Entry = &entry
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *LedgerHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Verify(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logging.AddField(r.Context(), "op", "ledger_verify")
	logging.AddField(r.Context(), "valid", resp.Valid)
	status := http.StatusOK
	if !resp.Valid {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *service.AppError
	if errors.As(err, &appErr) {
		logging.AddField(r.Context(), "error_code", appErr.Code)
		logging.AddField(r.Context(), "error_message", appErr.Message)
		writeJSON(w, appErr.HTTPStatus, protocol.ErrorResponse{Error: protocol.ErrorBody{Code: appErr.Code, Message: appErr.Message, Retryable: appErr.Retryable}})
		return
	}
	logging.AddField(r.Context(), "error_message", err.Error())
	writeJSON(w, http.StatusInternalServerError, protocol.ErrorResponse{Error: protocol.ErrorBody{Code: "INTERNAL_ERROR", Message: "internal error", Retryable: true}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}

func decodeJSONLimited(r *http.Request, maxBytes int64, dst any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
