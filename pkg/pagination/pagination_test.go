package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestResolveLimits(t *testing.T) {
	limit, cursor, err := Params{}.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != DefaultLimit+1 {
		t.Fatalf("expected default limit with buffer, got %d", limit)
	}
	if cursor != nil {
		t.Fatal("expected nil cursor for empty params")
	}

	limit, _, err = Params{Limit: 500}.Resolve()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limit != MaxLimit+1 {
		t.Fatalf("expected capped limit with buffer, got %d", limit)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{
		CreatedAt: time.Date(2025, 6, 12, 9, 30, 0, 123456789, time.UTC),
		ID:        uuid.New(),
	}
	decoded, err := Decode(Encode(original))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded == nil {
		t.Fatal("expected cursor")
	}
	if !decoded.CreatedAt.Equal(original.CreatedAt) || decoded.ID != original.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", decoded, original)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode("not-base64!!!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := Decode("bm8tcGlwZQ=="); err == nil {
		t.Fatal("expected error for missing separator")
	}
}
