package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DifficultyPrefix is the fixed hex prefix a valid block hash must begin
// with (§6). It is fixed at the protocol layer, not configurable per node.
const DifficultyPrefix = "000"

// GenesisHash is the bit-exact hash of the canonical genesis block (§6).
const GenesisHash = "0567c32b97c36a70d3f4cb865710d329a0be5d713c8cb1b8c769fbaf89f1afb7"

var zeroHash64 = strings.Repeat("0", 64)

// ErrInvalidBlockStructure is a construction-time error (§7).
var ErrInvalidBlockStructure = errors.New("invalid block structure")

// Block is an ordered batch of transactions chained by hash with a PoW
// nonce.
type Block struct {
	Index        uint64         `json:"index"`
	PreviousHash string         `json:"previous_hash"`
	Transactions []*Transaction `json:"transactions"`
	Nonce        uint64         `json:"nonce"`
	Timestamp    float64        `json:"timestamp"`
	Hash         string         `json:"hash"`
}

// NewBlock constructs a Block. If hash is empty, it is computed from the
// other fields via CalculateHash.
func NewBlock(index uint64, previousHash string, txs []*Transaction, nonce uint64, timestamp float64, hash string) (*Block, error) {
	if len(previousHash) != 64 {
		return nil, errors.Wrap(ErrInvalidBlockStructure, "previous_hash must be 64 hex characters")
	}
	if txs == nil {
		txs = []*Transaction{}
	}
	b := &Block{
		Index:        index,
		PreviousHash: previousHash,
		Transactions: txs,
		Nonce:        nonce,
		Timestamp:    timestamp,
	}
	if hash == "" {
		b.Hash = b.CalculateHash()
	} else {
		b.Hash = hash
	}
	return b, nil
}

// CreateGenesis produces the canonical genesis block (§4.2, §6).
func CreateGenesis() *Block {
	b, err := NewBlock(0, zeroHash64, []*Transaction{}, 0, 0, "")
	if err != nil {
		// The genesis fields are fixed constants; construction cannot fail.
		panic(err)
	}
	return b
}

// canonicalNumber renders a float64 the way Python's json encoder renders a
// number that happens to be whole (e.g. the genesis timestamp 0): no
// trailing ".0", no exponential notation regardless of magnitude.
func canonicalNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// canonicalTransaction renders one transaction's canonical key->value
// record with keys sorted lexicographically and "key": value, spacing
// matching Python's json.dumps(sort_keys=True) default separators.
func canonicalTransaction(t *Transaction) string {
	return `{"destino": ` + strconv.Quote(t.Destino) +
		`, "id": ` + strconv.Quote(t.ID) +
		`, "origem": ` + strconv.Quote(t.Origem) +
		`, "timestamp": ` + canonicalNumber(t.Timestamp) +
		`, "valor": ` + canonicalNumber(t.Valor) + `}`
}

// canonicalBytes serializes {index, previous_hash, transactions, nonce,
// timestamp} (excluding hash) with lexicographically sorted keys and the
// same spacing as Python's json.dumps(sort_keys=True) with default
// separators. This is the only hash contract the network relies on (§6) —
// any deviation forks the network.
func (b *Block) canonicalBytes() []byte {
	parts := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		parts[i] = canonicalTransaction(tx)
	}
	txArray := "[" + strings.Join(parts, ", ") + "]"

	out := `{"index": ` + strconv.FormatUint(b.Index, 10) +
		`, "nonce": ` + strconv.FormatUint(b.Nonce, 10) +
		`, "previous_hash": ` + strconv.Quote(b.PreviousHash) +
		`, "timestamp": ` + canonicalNumber(b.Timestamp) +
		`, "transactions": ` + txArray + `}`
	return []byte(out)
}

// CalculateHash is the lowercase hex SHA-256 of the canonical serialization
// (§6).
func (b *Block) CalculateHash() string {
	sum := sha256.Sum256(b.canonicalBytes())
	return hex.EncodeToString(sum[:])
}

// IsValidHash reports whether the block's hash begins with prefix.
func (b *Block) IsValidHash(prefix string) bool {
	return len(b.Hash) >= len(prefix) && b.Hash[:len(prefix)] == prefix
}

// ToMap produces the canonical wire record for a block.
func (b *Block) ToMap() map[string]interface{} {
	txRecords := make([]map[string]interface{}, len(b.Transactions))
	for i, tx := range b.Transactions {
		txRecords[i] = tx.ToMap()
	}
	return map[string]interface{}{
		"index":         b.Index,
		"previous_hash": b.PreviousHash,
		"transactions":  txRecords,
		"nonce":         b.Nonce,
		"timestamp":     b.Timestamp,
		"hash":          b.Hash,
	}
}

// BlockFromMap deserializes the canonical record.
func BlockFromMap(m map[string]interface{}) (*Block, error) {
	index, ok := toFloat(m["index"])
	if !ok {
		return nil, errors.Wrap(ErrInvalidBlockStructure, "block record missing numeric index")
	}
	previousHash, _ := m["previous_hash"].(string)
	nonce, _ := toFloat(m["nonce"])
	timestamp, _ := toFloat(m["timestamp"])
	hash, _ := m["hash"].(string)

	var txs []*Transaction
	var rawTxs []interface{}
	switch v := m["transactions"].(type) {
	case []interface{}:
		rawTxs = v
	case []map[string]interface{}:
		// The shape ToMap produces before any JSON round trip.
		for _, r := range v {
			rawTxs = append(rawTxs, r)
		}
	}
	for _, raw := range rawTxs {
		txMap, ok := raw.(map[string]interface{})
		if !ok {
			return nil, errors.Wrap(ErrInvalidBlockStructure, "block record has a malformed transaction entry")
		}
		tx, err := TransactionFromMap(txMap)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return NewBlock(uint64(index), previousHash, txs, uint64(nonce), timestamp, hash)
}
