package protocol

import (
	"fmt"
	"time"
)

// timestampLayout renders UTC instants with an explicit numeric offset and
// only the fractional digits the writer actually assigned.
const timestampLayout = "2006-01-02T15:04:05.999999999-07:00"

// Timestamp wraps time.Time so that JSON and canonical encodings stay
// byte-identical across a store round trip.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC()}
}

func (t Timestamp) String() string {
	return t.Format(timestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.Format(timestampLayout) + `"`), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("timestamp must be a JSON string")
	}
	parsed, err := ParseTimestamp(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func ParseTimestamp(s string) (Timestamp, error) {
	parsed, err := time.Parse(timestampLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	return Timestamp{parsed}, nil
}

// LedgerEntry is one sealed record in the chain. All fields are immutable
// once CurrentHash has been computed.
type LedgerEntry struct {
	ID           string    `json:"id"`
	Sequence     int64     `json:"sequence"`
	Timestamp    Timestamp `json:"timestamp"`
	EventType    string    `json:"event_type"`
	Payload      Document  `json:"payload"`
	PreviousHash string    `json:"previous_hash"`
	CurrentHash  string    `json:"current_hash"`
}

type LedgerAppendRequest struct {
	EventType string   `json:"event_type"`
	Payload   Document `json:"payload"`
}

// LedgerAck is a node-level signature over an append acknowledgement. It
// authenticates the response, not the chain; the chain is sealed by the
// HMAC in CurrentHash.
type LedgerAck struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	Sig string `json:"sig"`
}

// AckPayload is the signed content of a LedgerAck. Struct field order fixes
// the byte layout.
type AckPayload struct {
	EntryID     string `json:"entry_id"`
	Sequence    int64  `json:"sequence"`
	CurrentHash string `json:"current_hash"`
	KeyID       string `json:"kid"`
}

type LedgerAppendResponse struct {
	Entry LedgerEntry `json:"entry"`
	Ack   *LedgerAck  `json:"ack,omitempty"`
}

type HeadResponse struct {
	Found bool         `json:"found"`
	Entry *LedgerEntry `json:"entry,omitempty"`
}

type VerifyResponse struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason"`
	Entries int64  `json:"entries_checked"`
}

type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
