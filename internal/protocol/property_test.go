package protocol

import (
	"bytes"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genPayload() gopter.Gen {
	return gen.SliceOf(gopter.CombineGens(
		gen.Identifier(),
		gen.OneGenOf(
			gen.AlphaString(),
			gen.Int64(),
			gen.Bool(),
		),
	).Map(func(vals []interface{}) Member {
		return Member{Key: vals[0].(string), Value: vals[1]}
	})).Map(func(members []Member) Document {
		doc := make(Document, len(members))
		copy(doc, members)
		return doc
	})
}

func entryWithPayload(doc Document) LedgerEntry {
	return LedgerEntry{
		ID:           "00000000-0000-0000-0000-000000000001",
		Sequence:     1,
		Timestamp:    NewTimestamp(time.Unix(1700000000, 123456789)),
		EventType:    "PROPERTY",
		Payload:      doc,
		PreviousHash: goldenSeal,
	}
}

// Serializing any payload twice yields byte-identical canonical output.
func TestCanonicalDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical bytes are deterministic", prop.ForAll(
		func(doc Document) bool {
			entry := entryWithPayload(doc)
			first, err1 := CanonicalBytes(entry)
			second, err2 := CanonicalBytes(entry)
			if err1 != nil || err2 != nil {
				return false
			}
			return bytes.Equal(first, second)
		},
		genPayload(),
	))

	properties.TestingRun(t)
}

// Decoding the canonical payload and re-serializing reproduces the exact
// bytes: the encoding round trips.
func TestCanonicalRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical payload round trips", prop.ForAll(
		func(doc Document) bool {
			encoded, err := doc.MarshalJSON()
			if err != nil {
				return false
			}
			decoded, err := ParseDocument(encoded)
			if err != nil {
				return false
			}
			again, err := decoded.MarshalJSON()
			if err != nil {
				return false
			}
			return bytes.Equal(encoded, again)
		},
		genPayload(),
	))

	properties.TestingRun(t)
}

// Changing the event type of any entry changes its seal.
func TestSealSensitivityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	secret := []byte("property-secret")
	properties.Property("changing the event type changes the seal", prop.ForAll(
		func(doc Document, suffix string) bool {
			entry := entryWithPayload(doc)
			base, err := SealEntry(entry, secret)
			if err != nil {
				return false
			}
			entry.EventType = entry.EventType + "." + suffix
			changed, err := SealEntry(entry, secret)
			if err != nil {
				return false
			}
			return base != changed
		},
		genPayload(),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
