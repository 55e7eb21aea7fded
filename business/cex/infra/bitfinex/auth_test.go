package bitfinex

import (
	"strconv"
	"testing"
)

func TestGenerateNonceMonotonic(t *testing.T) {
	prev := int64(0)
	for i := 0; i < 1000; i++ {
		n, err := strconv.ParseInt(generateNonce(), 10, 64)
		if err != nil {
			t.Fatalf("nonce not numeric: %v", err)
		}
		if n <= prev {
			t.Fatalf("nonce %d not greater than previous %d", n, prev)
		}
		prev = n
	}
}

func TestSignPayload(t *testing.T) {
	// Known vector: HMAC-SHA384("key", "AUTH1700000000000000")
	got := signPayload([]byte("key"), []byte("AUTH1700000000000000"))
	if len(got) != 96 {
		t.Fatalf("signature length = %d, want 96 hex chars", len(got))
	}
	// Deterministic for fixed inputs
	if again := signPayload([]byte("key"), []byte("AUTH1700000000000000")); again != got {
		t.Error("signature not deterministic")
	}
	// Sensitive to the secret
	if other := signPayload([]byte("key2"), []byte("AUTH1700000000000000")); other == got {
		t.Error("different secrets must not collide")
	}
}
