package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bookvault/rescache/store"
)

func sampleEntry() store.Entry {
	return store.Entry{
		Key:          "b1:ch/1",
		OwnerID:      "b1",
		ResourcePath: "ch/1",
		Data:         []byte{0x00, 0xff, 0x10},
		MimeType:     "image/png",
		Size:         3,
		CreatedAt:    time.Unix(1700000000, 123).UTC(),
		AccessedAt:   time.Unix(1700000100, 456).UTC(),
		AccessCount:  7,
		Metadata:     map[string]string{"etag": "xyz"},
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	c := Msgpack[store.Entry]{}
	in := sampleEntry()

	b, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Key != in.Key || !bytes.Equal(out.Data, in.Data) || out.AccessCount != 7 {
		t.Fatalf("round trip mangled the entry: %+v", out)
	}
	if out.Metadata["etag"] != "xyz" {
		t.Fatalf("metadata lost: %+v", out.Metadata)
	}
}

func TestMsgpackRejectsGarbage(t *testing.T) {
	c := Msgpack[store.Entry]{}
	if _, err := c.Decode([]byte("\xc1not msgpack")); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestCBORDeterministicEncoding(t *testing.T) {
	c := MustCBOR[store.Entry](true)
	in := sampleEntry()

	b1, err := c.Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	b2, _ := c.Encode(in)
	if !bytes.Equal(b1, b2) {
		t.Fatal("deterministic mode produced unstable bytes")
	}

	out, err := c.Decode(b1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.OwnerID != "b1" || !bytes.Equal(out.Data, in.Data) {
		t.Fatalf("round trip mangled the entry: %+v", out)
	}
}

func TestJSONStaysInspectable(t *testing.T) {
	c := JSON[store.Entry]{}
	b, err := c.Encode(sampleEntry())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(string(b), `"ownerId":"b1"`) {
		t.Fatalf("encoded JSON not inspectable: %s", b)
	}
}

func TestLimitCapsDecode(t *testing.T) {
	inner := Msgpack[store.Entry]{}
	b, _ := inner.Encode(sampleEntry())

	c := Limit[store.Entry]{Inner: inner, MaxDecode: len(b)}
	if _, err := c.Decode(b); err != nil {
		t.Fatalf("Decode at the cap: %v", err)
	}

	c.MaxDecode = len(b) - 1
	if _, err := c.Decode(b); err == nil {
		t.Fatal("expected payload-too-large error")
	}

	// Encode is never capped.
	if _, err := c.Encode(sampleEntry()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
}
