package ump

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/ump-services/pkg/types"
)

// Query errors. All of them match ErrInvalidQuery under errors.Is.
var (
	ErrInvalidQuery     = errors.New("invalid query")
	ErrNoQuery          = fmt.Errorf("%w: no query supplied", ErrInvalidQuery)
	ErrUnsupportedQuery = fmt.Errorf("%w: unsupported query shape", ErrInvalidQuery)
	ErrAmbiguousQuery   = fmt.Errorf("%w: more than one lookup key", ErrInvalidQuery)
)

// Lookup keys accepted in a JSON query, in precedence order.
const (
	keyPresentationHash = "presentationHash"
	keyRecoveryHash     = "recoveryHash"
	keyOutpoint         = "outpoint"
)

// QueryKind selects which key a Query matches on.
type QueryKind int

const (
	ByPresentationHash QueryKind = iota + 1
	ByRecoveryHash
	ByOutpoint
)

func (k QueryKind) String() string {
	switch k {
	case ByPresentationHash:
		return keyPresentationHash
	case ByRecoveryHash:
		return keyRecoveryHash
	case ByOutpoint:
		return keyOutpoint
	default:
		return fmt.Sprintf("QueryKind(%d)", int(k))
	}
}

// Query is a lookup on exactly one key.
type Query struct {
	Kind     QueryKind
	Hash     types.Hash     // ByPresentationHash, ByRecoveryHash
	Outpoint types.Outpoint // ByOutpoint
}

// PresentationHashQuery matches records by presentation hash.
func PresentationHashQuery(h types.Hash) *Query {
	return &Query{Kind: ByPresentationHash, Hash: h}
}

// RecoveryHashQuery matches records by recovery hash.
func RecoveryHashQuery(h types.Hash) *Query {
	return &Query{Kind: ByRecoveryHash, Hash: h}
}

// OutpointQuery matches the record stored under op.
func OutpointQuery(op types.Outpoint) *Query {
	return &Query{Kind: ByOutpoint, Outpoint: op}
}

// ParseQuery converts a JSON lookup object such as
//
//	{"presentationHash": "<hex>"}
//	{"recoveryHash": "<hex>"}
//	{"outpoint": "<txid>.<index>"}
//
// into a Query. When several keys are present the first one in the order
// presentationHash, recoveryHash, outpoint is used and the rest are ignored,
// unless strict is set, in which case the query is rejected with
// ErrAmbiguousQuery. Keys holding an empty string count as absent.
func ParseQuery(raw json.RawMessage, strict bool) (*Query, error) {
	q, _, err := parseQuery(raw, strict)
	return q, err
}

// parseQuery is ParseQuery that also reports how many lookup keys were present.
func parseQuery(raw json.RawMessage, strict bool) (*Query, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, 0, ErrNoQuery
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj == nil {
		return nil, 0, ErrUnsupportedQuery
	}

	var (
		present []string
		values  = make(map[string]string, 3)
	)
	for _, key := range []string{keyPresentationHash, keyRecoveryHash, keyOutpoint} {
		v, ok := obj[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, 0, fmt.Errorf("%w: %s must be a string", ErrInvalidQuery, key)
		}
		if s == "" {
			continue
		}
		present = append(present, key)
		values[key] = s
	}

	n := len(present)
	switch {
	case n == 0:
		return nil, 0, ErrUnsupportedQuery
	case n > 1 && strict:
		return nil, n, fmt.Errorf("%w: %v", ErrAmbiguousQuery, present)
	}

	key := present[0]
	val := values[key]
	switch key {
	case keyPresentationHash, keyRecoveryHash:
		h, err := types.HexToHash(val)
		if err != nil {
			return nil, n, fmt.Errorf("%w: %s: %v", ErrInvalidQuery, key, err)
		}
		if key == keyPresentationHash {
			return PresentationHashQuery(h), n, nil
		}
		return RecoveryHashQuery(h), n, nil
	default:
		op, err := types.ParseOutpoint(val)
		if err != nil {
			return nil, n, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return OutpointQuery(op), n, nil
	}
}
