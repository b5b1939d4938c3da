package normalize

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"

	"wooswap-indexer/internal/chain"
	"wooswap-indexer/internal/domain"
)

// Signatures of the indexed contract events.
var Signatures = map[domain.EventKind]string{
	domain.KindSwapExecuted:     "WooSwapExecuted(address,address,address,uint256,uint256,uint256)",
	domain.KindBreakUp:          "BreakUp(address,string)",
	domain.KindAffectionUpdated: "AffectionUpdated(uint256,uint256)",
	domain.KindRebatePaid:       "RebatePaid(address,uint256,uint256)",
}

var kindByTopic = func() map[string]domain.EventKind {
	m := make(map[string]domain.EventKind, len(Signatures))
	for kind, sig := range Signatures {
		m[Topic(sig)] = kind
	}
	return m
}()

// Topic returns the keccak256 hash of an event signature as 0x-hex.
func Topic(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Topics returns topic0 values for all indexed events, for use in a log filter.
func Topics() []string {
	topics := make([]string, 0, len(kindByTopic))
	for topic := range kindByTopic {
		topics = append(topics, topic)
	}
	return topics
}

// KindOf returns the event kind whose topic0 matches l, if any.
func KindOf(l *chain.Log) (domain.EventKind, bool) {
	if len(l.Topics) == 0 {
		return "", false
	}
	kind, ok := kindByTopic[strings.ToLower(l.Topics[0])]
	return kind, ok
}

const wordSize = 32

// DecodeLog ABI-decodes an EVM log into a RawEvent stamped with the
// block timestamp. Logs from unknown events return ErrMalformedEvent.
func DecodeLog(l *chain.Log, timestamp int64) (*RawEvent, error) {
	kind, ok := KindOf(l)
	if !ok {
		return nil, malformed("log %s:%d: unknown topic0", l.TransactionHash, l.LogIndex)
	}
	if len(l.Topics) < 2 {
		return nil, malformed("log %s:%d: missing indexed topic", l.TransactionHash, l.LogIndex)
	}

	data, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(l.Data, "0x"), "0X"))
	if err != nil {
		return nil, malformed("log %s:%d: data: %v", l.TransactionHash, l.LogIndex, err)
	}
	indexed, err := hex.DecodeString(strings.TrimPrefix(l.Topics[1], "0x"))
	if err != nil || len(indexed) != wordSize {
		return nil, malformed("log %s:%d: bad indexed topic", l.TransactionHash, l.LogIndex)
	}

	d := abiData{data: data}
	fields := make(map[string]interface{})
	switch kind {
	case domain.KindSwapExecuted:
		fields["user"] = wordAddress(indexed)
		fields["tokenIn"] = d.addressAt(0)
		fields["tokenOut"] = d.addressAt(1)
		fields["amountIn"] = d.uintAt(2)
		fields["amountOut"] = d.uintAt(3)
		fields["rebateAmount"] = d.uintAt(4)
	case domain.KindBreakUp:
		fields["user"] = wordAddress(indexed)
		fields["reason"] = d.stringAt(0)
	case domain.KindAffectionUpdated:
		fields["tokenId"] = new(big.Int).SetBytes(indexed).String()
		fields["newAffection"] = d.uintAt(0)
	case domain.KindRebatePaid:
		fields["user"] = wordAddress(indexed)
		fields["amount"] = d.uintAt(0)
		fields["affection"] = d.uintAt(1)
	}
	if d.err != nil {
		return nil, malformed("log %s:%d: %v", l.TransactionHash, l.LogIndex, d.err)
	}

	params := make(map[string]json.RawMessage, len(fields))
	for name, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode param %s: %w", name, err)
		}
		params[name] = b
	}

	logIndex := FlexUint(l.LogIndex)
	blockNumber := FlexUint(l.BlockNumber)
	ts := FlexUint(timestamp)
	return &RawEvent{
		Event:           string(kind),
		Params:          params,
		Block:           RawBlock{Timestamp: &ts, Number: &blockNumber},
		TransactionHash: l.TransactionHash,
		LogIndex:        &logIndex,
	}, nil
}

func wordAddress(word []byte) string {
	return "0x" + hex.EncodeToString(word[wordSize-20:])
}

// abiData reads head words and dynamic values from non-indexed event data.
type abiData struct {
	data []byte
	err  error
}

func (d *abiData) word(i int) []byte {
	if d.err != nil {
		return nil
	}
	start := i * wordSize
	if start+wordSize > len(d.data) {
		d.err = fmt.Errorf("data too short for word %d", i)
		return nil
	}
	return d.data[start : start+wordSize]
}

func (d *abiData) addressAt(i int) string {
	w := d.word(i)
	if w == nil {
		return ""
	}
	return wordAddress(w)
}

func (d *abiData) uintAt(i int) string {
	w := d.word(i)
	if w == nil {
		return ""
	}
	return new(big.Int).SetBytes(w).String()
}

func (d *abiData) stringAt(i int) string {
	w := d.word(i)
	if w == nil {
		return ""
	}
	// Compare as big.Int so hostile offsets cannot overflow the bounds check.
	size := big.NewInt(int64(len(d.data)))
	offset := new(big.Int).SetBytes(w)
	if offset.Cmp(new(big.Int).Sub(size, big.NewInt(wordSize))) > 0 {
		d.err = fmt.Errorf("string offset out of range")
		return ""
	}
	body := int(offset.Int64()) + wordSize
	length := new(big.Int).SetBytes(d.data[body-wordSize : body])
	if length.Cmp(big.NewInt(int64(len(d.data)-body))) > 0 {
		d.err = fmt.Errorf("string length out of range")
		return ""
	}
	return string(d.data[body : body+int(length.Int64())])
}
