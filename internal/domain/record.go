package domain

import "github.com/shopspring/decimal"

// SwapRecord is the immutable audit record of one WooSwapExecuted event.
type SwapRecord struct {
	User            string          `json:"user"`
	TokenIn         string          `json:"tokenIn"`
	TokenOut        string          `json:"tokenOut"`
	AmountIn        decimal.Decimal `json:"amountIn"`
	AmountOut       decimal.Decimal `json:"amountOut"`
	RebateAmount    decimal.Decimal `json:"rebateAmount"`
	Timestamp       int64           `json:"timestamp"`
	BlockNumber     uint64          `json:"blockNumber"`
	TransactionHash string          `json:"transactionHash"`
	LogIndex        uint64          `json:"logIndex"`
}

// BreakupRecord is the immutable audit record of one BreakUp event.
type BreakupRecord struct {
	User            string `json:"user"`
	Reason          string `json:"reason"`
	Timestamp       int64  `json:"timestamp"`
	BlockNumber     uint64 `json:"blockNumber"`
	TransactionHash string `json:"transactionHash"`
	LogIndex        uint64 `json:"logIndex"`
}

// RebateRecord is the immutable audit record of one RebatePaid event.
type RebateRecord struct {
	User            string          `json:"user"`
	Amount          decimal.Decimal `json:"amount"`
	Affection       int64           `json:"affection"`
	Timestamp       int64           `json:"timestamp"`
	BlockNumber     uint64          `json:"blockNumber"`
	TransactionHash string          `json:"transactionHash"`
	LogIndex        uint64          `json:"logIndex"`
}

// AffectionRecord is the latest known affection of an NFT token.
// BlockNumber and LogIndex order competing updates.
type AffectionRecord struct {
	TokenID         string `json:"tokenId"`
	Affection       int64  `json:"affection"`
	Timestamp       int64  `json:"timestamp"`
	BlockNumber     uint64 `json:"blockNumber"`
	TransactionHash string `json:"transactionHash"`
	LogIndex        uint64 `json:"logIndex"`
}

// Before reports whether r was emitted strictly before position (block, logIndex).
func (r *AffectionRecord) Before(block, logIndex uint64) bool {
	if r.BlockNumber != block {
		return r.BlockNumber < block
	}
	return r.LogIndex < logIndex
}

// NewSwapRecord builds the audit record for a swap event.
func NewSwapRecord(e *Event) *SwapRecord {
	return &SwapRecord{
		User:            e.Swap.User,
		TokenIn:         e.Swap.TokenIn,
		TokenOut:        e.Swap.TokenOut,
		AmountIn:        e.Swap.AmountIn,
		AmountOut:       e.Swap.AmountOut,
		RebateAmount:    e.Swap.RebateAmount,
		Timestamp:       e.Timestamp,
		BlockNumber:     e.BlockNumber,
		TransactionHash: e.TxHash,
		LogIndex:        e.LogIndex,
	}
}

// NewBreakupRecord builds the audit record for a breakup event.
func NewBreakupRecord(e *Event) *BreakupRecord {
	return &BreakupRecord{
		User:            e.BreakUp.User,
		Reason:          e.BreakUp.Reason,
		Timestamp:       e.Timestamp,
		BlockNumber:     e.BlockNumber,
		TransactionHash: e.TxHash,
		LogIndex:        e.LogIndex,
	}
}

// NewRebateRecord builds the audit record for a rebate event.
func NewRebateRecord(e *Event) *RebateRecord {
	return &RebateRecord{
		User:            e.Rebate.User,
		Amount:          e.Rebate.Amount,
		Affection:       e.Rebate.Affection,
		Timestamp:       e.Timestamp,
		BlockNumber:     e.BlockNumber,
		TransactionHash: e.TxHash,
		LogIndex:        e.LogIndex,
	}
}

// NewAffectionRecord builds the token-keyed record for an affection update.
func NewAffectionRecord(e *Event) *AffectionRecord {
	return &AffectionRecord{
		TokenID:         e.Affection.TokenID,
		Affection:       e.Affection.NewAffection,
		Timestamp:       e.Timestamp,
		BlockNumber:     e.BlockNumber,
		TransactionHash: e.TxHash,
		LogIndex:        e.LogIndex,
	}
}
