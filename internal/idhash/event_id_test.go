package idhash

import (
	"testing"
)

func TestEventKey(t *testing.T) {
	tests := []struct {
		name     string
		txHash   string
		logIndex uint64
		want     string
	}{
		{
			name:     "lower-case hash",
			txHash:   "0xabc123",
			logIndex: 4,
			want:     "0xabc123:4",
		},
		{
			name:     "mixed-case hash is normalized",
			txHash:   "0xABC123",
			logIndex: 0,
			want:     "0xabc123:0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EventKey(tt.txHash, tt.logIndex)
			if got != tt.want {
				t.Errorf("EventKey() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeEventID_Determinism(t *testing.T) {
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		results[i] = ComputeEventID("WooSwapExecuted", "0xabc", 3)
	}

	if len(results[0]) != 64 {
		t.Errorf("ComputeEventID() length = %d, want 64", len(results[0]))
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("Determinism failed: results[%d]=%s != results[0]=%s", i, results[i], results[0])
		}
	}
}

func TestComputeEventID_DifferentInputs(t *testing.T) {
	base := ComputeEventID("WooSwapExecuted", "0xabc", 3)

	if base == ComputeEventID("BreakUp", "0xabc", 3) {
		t.Error("Different kind should produce different hash")
	}
	if base == ComputeEventID("WooSwapExecuted", "0xabd", 3) {
		t.Error("Different tx hash should produce different hash")
	}
	if base == ComputeEventID("WooSwapExecuted", "0xabc", 4) {
		t.Error("Different log index should produce different hash")
	}
	if base != ComputeEventID("WooSwapExecuted", "0xABC", 3) {
		t.Error("Tx hash case should not change the hash")
	}
}
