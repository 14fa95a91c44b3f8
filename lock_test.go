package fairlock

import "testing"

func TestMintKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		key, err := mintKey()
		if err != nil {
			t.Fatalf("mintKey failed: %v", err)
		}
		if len(key) != keyBytes*2 {
			t.Fatalf("key length = %d, want %d hex chars", len(key), keyBytes*2)
		}
		if seen[key] {
			t.Fatalf("duplicate key minted: %s", key)
		}
		seen[key] = true
	}
}
