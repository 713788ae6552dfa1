package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadOutpoint is returned when an outpoint string cannot be parsed.
var ErrBadOutpoint = errors.New("malformed outpoint")

// Outpoint identifies a transaction output: the UTXO identity.
// TxID is opaque to this service and compared byte-for-byte.
type Outpoint struct {
	TxID  string `json:"txid"`
	Index uint32 `json:"outputIndex"`
}

// IsZero returns true if the outpoint has an empty TxID and zero index.
func (o Outpoint) IsZero() bool {
	return o.TxID == "" && o.Index == 0
}

// String returns "txid.index".
func (o Outpoint) String() string {
	return fmt.Sprintf("%s.%d", o.TxID, o.Index)
}

// ParseOutpoint parses "txid.index", splitting on the first '.'.
func ParseOutpoint(s string) (Outpoint, error) {
	txid, idx, ok := strings.Cut(s, ".")
	if !ok {
		return Outpoint{}, fmt.Errorf("%w: %q has no '.' separator", ErrBadOutpoint, s)
	}
	if txid == "" {
		return Outpoint{}, fmt.Errorf("%w: empty txid", ErrBadOutpoint)
	}
	n, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("%w: output index %q: %v", ErrBadOutpoint, idx, err)
	}
	return Outpoint{TxID: txid, Index: uint32(n)}, nil
}
