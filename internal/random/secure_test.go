package random

import "testing"

func TestTransactionID(t *testing.T) {
	// Generate multiple IDs and check uniqueness
	seen := make(map[uint16]bool)
	const iterations = 10000

	for i := 0; i < iterations; i++ {
		id := TransactionID()

		if seen[id] {
			// Collision is possible but should be rare
			// With 10k iterations and 65k possible values,
			// a collision is all but certain (birthday paradox;
			// about 725 repeats expected, ~9,275 unique values)
			// So we just check that we get mostly unique values
			continue
		}
		seen[id] = true
	}

	uniqueCount := len(seen)
	if uniqueCount < iterations*9/10 {
		t.Errorf("too many collisions: got %d unique IDs from %d iterations", uniqueCount, iterations)
	}
}

func BenchmarkTransactionID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		TransactionID()
	}
}
