package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserStats_Defaults(t *testing.T) {
	s := NewUserStats("0xnew")

	assert.Equal(t, "0xnew", s.Address)
	assert.True(t, s.TotalVolume.IsZero())
	assert.Equal(t, int64(0), s.SwapCount)
	assert.Equal(t, int64(5000), s.CurrentAffection)
	assert.True(t, s.TotalRebates.IsZero())
	assert.Equal(t, int64(0), s.LastSwapTime)
	assert.Equal(t, int64(0), s.BreakupCount)
}

func TestUserStats_JSONAmountsAsStrings(t *testing.T) {
	s := NewUserStats("0xabc")
	s.TotalVolume = decimal.RequireFromString("123456789012345678901234567890")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"totalVolume":"123456789012345678901234567890"`)

	var decoded UserStats
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, s.TotalVolume.Equal(decoded.TotalVolume))
}

func TestUserStats_AcceptsNumericAmounts(t *testing.T) {
	// Records written by older tooling stored plain JSON numbers.
	raw := `{"address":"0xabc","totalVolume":60,"swapCount":3,"currentAffection":5000,"totalRebates":1.5,"lastSwapTime":10,"breakupCount":0}`

	var s UserStats
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, "60", s.TotalVolume.String())
	assert.Equal(t, "1.5", s.TotalRebates.String())
}

func TestEvent_SubjectAndUser(t *testing.T) {
	swap := &Event{Kind: KindSwapExecuted, Swap: &SwapPayload{User: "0xaa"}}
	assert.Equal(t, "0xaa", swap.User())
	assert.Equal(t, "0xaa", swap.Subject())

	aff := &Event{Kind: KindAffectionUpdated, Affection: &AffectionPayload{TokenID: "7"}}
	assert.Equal(t, "", aff.User())
	assert.Equal(t, "token:7", aff.Subject())
}

func TestEvent_PayloadRoundTrip(t *testing.T) {
	e := &Event{
		Kind:   KindRebatePaid,
		Rebate: &RebatePayload{User: "0xbb", Amount: decimal.NewFromInt(42), Affection: 8000},
	}

	data, err := e.MarshalPayload()
	require.NoError(t, err)

	decoded := &Event{Kind: KindRebatePaid}
	require.NoError(t, decoded.UnmarshalPayload(data))
	assert.Equal(t, "0xbb", decoded.Rebate.User)
	assert.True(t, decoded.Rebate.Amount.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, int64(8000), decoded.Rebate.Affection)
}

func TestEvent_UnknownKind(t *testing.T) {
	e := &Event{Kind: "Transfer"}
	assert.False(t, e.Kind.Valid())

	_, err := e.MarshalPayload()
	assert.Error(t, err)
	assert.Error(t, e.UnmarshalPayload([]byte(`{}`)))
}

func TestAffectionRecord_Before(t *testing.T) {
	r := &AffectionRecord{BlockNumber: 10, LogIndex: 3}

	assert.True(t, r.Before(11, 0))
	assert.True(t, r.Before(10, 4))
	assert.False(t, r.Before(10, 3))
	assert.False(t, r.Before(9, 99))
}
