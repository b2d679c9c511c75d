package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CanonicalBytes produces the deterministic UTF-8 JSON form of an entry
// excluding CurrentHash. This is the exact byte sequence the seal covers;
// field order and payload member order are part of the signed content.
func CanonicalBytes(e LedgerEntry) ([]byte, error) {
	id, err := CanonicalID(e.ID)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 256)
	buf = append(buf, `{"sequence":`...)
	buf = strconv.AppendInt(buf, e.Sequence, 10)
	buf = append(buf, `,"id":`...)
	buf = appendJSONString(buf, id)
	buf = append(buf, `,"timestamp":`...)
	buf = appendJSONString(buf, e.Timestamp.String())
	buf = append(buf, `,"previousHash":`...)
	buf = appendJSONString(buf, strings.ToLower(e.PreviousHash))
	buf = append(buf, `,"eventType":`...)
	buf = appendJSONString(buf, e.EventType)
	buf = append(buf, `,"payload":`...)
	buf, err = appendValue(buf, e.Payload)
	if err != nil {
		return nil, err
	}
	buf = append(buf, '}')
	return buf, nil
}

// ValidatePayload walks a payload and reports the first value that has no
// canonical encoding.
func ValidatePayload(d Document) error {
	_, err := appendValue(nil, d)
	return err
}

// CanonicalID normalizes an entry id to the 8-4-4-4-12 lowercase hex form.
func CanonicalID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("entry id %q is not a uuid: %w", id, err)
	}
	return parsed.String(), nil
}

func appendValue(buf []byte, v any) ([]byte, error) {
	switch value := v.(type) {
	case nil:
		return append(buf, "null"...), nil
	case bool:
		if value {
			return append(buf, "true"...), nil
		}
		return append(buf, "false"...), nil
	case string:
		return appendJSONString(buf, value), nil
	case int:
		return strconv.AppendInt(buf, int64(value), 10), nil
	case int32:
		return strconv.AppendInt(buf, int64(value), 10), nil
	case int64:
		return strconv.AppendInt(buf, value, 10), nil
	case Document:
		buf = append(buf, '{')
		for i, m := range value {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendJSONString(buf, m.Key)
			buf = append(buf, ':')
			var err error
			buf, err = appendValue(buf, m.Value)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, '}'), nil
	case Array:
		return appendSequence(buf, value)
	case []any:
		return appendSequence(buf, value)
	}
	return nil, fmt.Errorf("payload value of type %T is not canonicalizable", v)
}

func appendSequence(buf []byte, values []any) ([]byte, error) {
	buf = append(buf, '[')
	for i, v := range values {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		buf, err = appendValue(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return append(buf, ']'), nil
}

// appendJSONString writes s with JSON default escaping. Non-ASCII runes pass
// through as raw UTF-8; only quote, backslash, and control characters are
// escaped.
func appendJSONString(buf []byte, s string) []byte {
	const hexDigits = "0123456789abcdef"
	buf = append(buf, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			buf = append(buf, '\\', '"')
		case c == '\\':
			buf = append(buf, '\\', '\\')
		case c == '\b':
			buf = append(buf, '\\', 'b')
		case c == '\f':
			buf = append(buf, '\\', 'f')
		case c == '\n':
			buf = append(buf, '\\', 'n')
		case c == '\r':
			buf = append(buf, '\\', 'r')
		case c == '\t':
			buf = append(buf, '\\', 't')
		case c < 0x20:
			buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, '"')
}
