package ingestion

import (
	"testing"

	"wooswap-indexer/internal/chain"
)

func TestSortLogs(t *testing.T) {
	logs := []chain.Log{
		{BlockNumber: 12, LogIndex: 0, TransactionHash: "c"},
		{BlockNumber: 10, LogIndex: 5, TransactionHash: "b"},
		{BlockNumber: 10, LogIndex: 1, TransactionHash: "a"},
	}

	SortLogs(logs)

	want := []string{"a", "b", "c"}
	for i, tx := range want {
		if logs[i].TransactionHash != tx {
			t.Errorf("position %d: expected %s, got %s", i, tx, logs[i].TransactionHash)
		}
	}
}

func TestCompactLogs(t *testing.T) {
	tests := []struct {
		name        string
		logs        []chain.Log
		wantTxs     []string
		wantDropped int
	}{
		{"empty", nil, nil, 0},
		{"single", []chain.Log{{BlockNumber: 1, TransactionHash: "a"}}, []string{"a"}, 0},
		{
			"distinct",
			[]chain.Log{{BlockNumber: 1, LogIndex: 3, TransactionHash: "a"}, {BlockNumber: 2, LogIndex: 0, TransactionHash: "b"}},
			[]string{"a", "b"}, 0,
		},
		{
			"repeated position",
			[]chain.Log{
				{BlockNumber: 1, LogIndex: 1, TransactionHash: "a"},
				{BlockNumber: 1, LogIndex: 1, TransactionHash: "a"},
				{BlockNumber: 1, LogIndex: 2, TransactionHash: "b"},
				{BlockNumber: 1, LogIndex: 2, TransactionHash: "b"},
			},
			[]string{"a", "b"}, 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dropped := CompactLogs(tt.logs)
			var txs []string
			for _, l := range got {
				txs = append(txs, l.TransactionHash)
			}
			if len(txs) != len(tt.wantTxs) {
				t.Fatalf("CompactLogs() = %v, want %v", txs, tt.wantTxs)
			}
			for i := range txs {
				if txs[i] != tt.wantTxs[i] {
					t.Errorf("position %d: expected %s, got %s", i, tt.wantTxs[i], txs[i])
				}
			}
			if dropped != tt.wantDropped {
				t.Errorf("CompactLogs() dropped = %d, want %d", dropped, tt.wantDropped)
			}
		})
	}
}
