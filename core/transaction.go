package core

import (
	"math"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// System addresses bypass solvency checks (§3, §6).
const (
	AddressGenesis  = "genesis"
	AddressCoinbase = "coinbase"
)

// MiningReward is the fixed coinbase payout (§6).
const MiningReward = 50.0

// Construction-time error kinds (§7). They never enter any state; the
// constructor simply fails.
var (
	ErrInvalidTransactionValue   = errors.New("invalid transaction value")
	ErrInvalidTransactionAddress = errors.New("invalid transaction address")
)

// Transaction is an immutable value-transfer record. Equality and hashing
// are by ID alone.
type Transaction struct {
	ID        string  `json:"id"`
	Origem    string  `json:"origem"`
	Destino   string  `json:"destino"`
	Valor     float64 `json:"valor"`
	Timestamp float64 `json:"timestamp"`
}

func isSystemAddress(addr string) bool {
	return addr == AddressGenesis || addr == AddressCoinbase
}

// NewTransaction validates and constructs a Transaction, stamping it with a
// fresh UUID v4 identifier and the current time.
func NewTransaction(origem, destino string, valor float64) (*Transaction, error) {
	return newTransactionAt(origem, destino, valor, float64(time.Now().UnixNano())/1e9)
}

func newTransactionAt(origem, destino string, valor float64, timestamp float64) (*Transaction, error) {
	if origem == "" || destino == "" {
		return nil, errors.Wrap(ErrInvalidTransactionAddress, "origem and destino must be non-empty")
	}
	if origem == destino && !isSystemAddress(origem) {
		return nil, errors.Wrap(ErrInvalidTransactionAddress, "origem cannot equal destino for a non-system sender")
	}
	if math.IsNaN(valor) || math.IsInf(valor, 0) || valor <= 0 {
		return nil, errors.Wrap(ErrInvalidTransactionValue, "valor must be a positive, finite number")
	}
	id := uuid.NewV4()
	return &Transaction{
		ID:        id.String(),
		Origem:    origem,
		Destino:   destino,
		Valor:     valor,
		Timestamp: timestamp,
	}, nil
}

// NewCoinbaseTransaction builds the reward-paying transaction prepended to
// every mined block (§4.4 step 3).
func NewCoinbaseTransaction(minerAddress string, timestamp float64) (*Transaction, error) {
	return newTransactionAt(AddressCoinbase, minerAddress, MiningReward, timestamp)
}

// Equal compares transactions by ID only, per §3.
func (t *Transaction) Equal(other *Transaction) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.ID == other.ID
}

// ToMap produces the canonical key->value record used on the wire (§4.1,
// §6). Block hashing does not go through this map: it uses the hand-written
// canonicalTransaction encoder in block.go.
func (t *Transaction) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"id":        t.ID,
		"origem":    t.Origem,
		"destino":   t.Destino,
		"valor":     t.Valor,
		"timestamp": t.Timestamp,
	}
}

// TransactionFromMap deserializes the canonical record. It round-trips to
// an equal Transaction (§8 invariant 6).
func TransactionFromMap(m map[string]interface{}) (*Transaction, error) {
	id, _ := m["id"].(string)
	origem, _ := m["origem"].(string)
	destino, _ := m["destino"].(string)
	valor, ok := toFloat(m["valor"])
	if !ok {
		return nil, errors.New("transaction record missing numeric valor")
	}
	timestamp, _ := toFloat(m["timestamp"])
	if id == "" || origem == "" || destino == "" {
		return nil, errors.New("transaction record missing required field")
	}
	return &Transaction{ID: id, Origem: origem, Destino: destino, Valor: valor, Timestamp: timestamp}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
