package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	machinecrypto "github.com/h-ibrahim365/ProvanceProtocol/internal/crypto"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/ledger"
	"github.com/h-ibrahim365/ProvanceProtocol/internal/protocol"
)

type LedgerService struct {
	ledger     *ledger.Ledger
	signer     *machinecrypto.Signer
	writeToken string
	service    string
	version    string
}

type LedgerParams struct {
	Ledger *ledger.Ledger
	// Signer is optional; when present, append responses carry a signed ack.
	Signer     *machinecrypto.Signer
	WriteToken string
	Service    string
	Version    string
}

func NewLedger(params LedgerParams) (*LedgerService, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if params.WriteToken == "" {
		return nil, fmt.Errorf("write token is required")
	}
	if params.Service == "" {
		params.Service = "provenance-node"
	}
	if params.Version == "" {
		params.Version = "dev"
	}
	return &LedgerService{
		ledger:     params.Ledger,
		signer:     params.Signer,
		writeToken: params.WriteToken,
		service:    params.Service,
		version:    params.Version,
	}, nil
}

func (s *LedgerService) VerifyWriteToken(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" || s.writeToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.writeToken)) == 1
}

func (s *LedgerService) Append(ctx context.Context, req protocol.LedgerAppendRequest) (protocol.LedgerAppendResponse, error) {
	if strings.TrimSpace(req.EventType) == "" {
		return protocol.LedgerAppendResponse{}, NewAppError(http.StatusBadRequest, "LEDGER_BAD_REQUEST", "event_type is required", false, nil)
	}
	if req.Payload == nil {
		return protocol.LedgerAppendResponse{}, NewAppError(http.StatusBadRequest, "LEDGER_BAD_REQUEST", "payload is required", false, nil)
	}
	entry, err := s.ledger.AddEntry(ctx, req.EventType, req.Payload)
	if err != nil {
		return protocol.LedgerAppendResponse{}, fromLedgerError("append ledger entry", err)
	}
	resp := protocol.LedgerAppendResponse{Entry: entry}
	if s.signer != nil {
		ack, err := s.signAck(entry)
		if err != nil {
			return protocol.LedgerAppendResponse{}, Internal("sign append ack", err)
		}
		resp.Ack = ack
	}
	return resp, nil
}

func (s *LedgerService) signAck(entry protocol.LedgerEntry) (*protocol.LedgerAck, error) {
	raw, err := json.Marshal(protocol.AckPayload{
		EntryID:     entry.ID,
		Sequence:    entry.Sequence,
		CurrentHash: entry.CurrentHash,
		KeyID:       s.signer.KeyID,
	})
	if err != nil {
		return nil, err
	}
	return &protocol.LedgerAck{
		Alg: "ed25519",
		Kid: s.signer.KeyID,
		Sig: s.signer.Sign(raw),
	}, nil
}

func (s *LedgerService) GetEntry(ctx context.Context, id string) (protocol.LedgerEntry, bool, error) {
	if _, err := protocol.CanonicalID(id); err != nil {
		return protocol.LedgerEntry{}, false, NewAppError(http.StatusBadRequest, "LEDGER_BAD_REQUEST", "invalid entry id", false, err)
	}
	entry, found, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return protocol.LedgerEntry{}, false, Internal("get ledger entry", err)
	}
	return entry, found, nil
}

func (s *LedgerService) Head(ctx context.Context) (protocol.LedgerEntry, bool, error) {
	entry, found, err := s.ledger.Head(ctx)
	if err != nil {
		return protocol.LedgerEntry{}, false, Internal("get ledger head", err)
	}
	return entry, found, nil
}

func (s *LedgerService) Verify(ctx context.Context) (protocol.VerifyResponse, error) {
	result, err := s.ledger.Verify(ctx)
	if err != nil {
		return protocol.VerifyResponse{}, fromLedgerError("verify ledger", err)
	}
	return protocol.VerifyResponse{
		Valid:   result.Valid,
		Reason:  result.Reason,
		Entries: result.Entries,
	}, nil
}

func (s *LedgerService) Health(ctx context.Context) (map[string]any, error) {
	head, found, err := s.ledger.Head(ctx)
	if err != nil {
		return nil, Internal("get ledger head", err)
	}
	out := map[string]any{
		"service":      s.service,
		"version":      s.version,
		"status":       "ok",
		"writer_state": s.ledger.State().String(),
		"time":         time.Now().UTC(),
	}
	if s.ledger.State() == ledger.StateFailed {
		out["status"] = "degraded"
		if cause := s.ledger.Err(); cause != nil {
			out["writer_error"] = cause.Error()
		}
	}
	if found {
		out["head_sequence"] = head.Sequence
		out["head_hash"] = head.CurrentHash
	}
	return out, nil
}
