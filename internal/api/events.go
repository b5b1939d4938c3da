package api

import (
	"encoding/json"

	"wooswap-indexer/internal/domain"
)

// eventView is the JSON shape of an archived event.
type eventView struct {
	Kind            domain.EventKind `json:"kind"`
	TransactionHash string           `json:"transactionHash"`
	LogIndex        uint64           `json:"logIndex"`
	BlockNumber     uint64           `json:"blockNumber"`
	Timestamp       int64            `json:"timestamp"`
	Params          json.RawMessage  `json:"params"`
}

func newEventView(e *domain.Event) (eventView, error) {
	payload, err := e.MarshalPayload()
	if err != nil {
		return eventView{}, err
	}
	return eventView{
		Kind:            e.Kind,
		TransactionHash: e.TxHash,
		LogIndex:        e.LogIndex,
		BlockNumber:     e.BlockNumber,
		Timestamp:       e.Timestamp,
		Params:          payload,
	}, nil
}
