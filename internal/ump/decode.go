package ump

import (
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/bsv-blockchain/ump-services/internal/pushdrop"
	"github.com/bsv-blockchain/ump-services/pkg/types"
)

// ErrDecode is returned when an admitted output does not carry a well-formed UMP token.
var ErrDecode = errors.New("malformed UMP token")

// Push-drop field positions in a UMP token.
const (
	presentationHashField = 6
	recoveryHashField     = 7
	minTokenFields        = recoveryHashField + 1
)

// DecodeToken extracts the presentation and recovery hashes from a UMP
// token's locking script.
func DecodeToken(lockingScript *script.Script) (presentation, recovery types.Hash, err error) {
	tok, err := pushdrop.Decode(lockingScript)
	if err != nil {
		return types.Hash{}, types.Hash{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if len(tok.Fields) < minTokenFields {
		return types.Hash{}, types.Hash{}, fmt.Errorf("%w: %d fields, need at least %d", ErrDecode, len(tok.Fields), minTokenFields)
	}
	presentation, err = types.BytesToHash(tok.Fields[presentationHashField])
	if err != nil {
		return types.Hash{}, types.Hash{}, fmt.Errorf("%w: presentation hash: %v", ErrDecode, err)
	}
	recovery, err = types.BytesToHash(tok.Fields[recoveryHashField])
	if err != nil {
		return types.Hash{}, types.Hash{}, fmt.Errorf("%w: recovery hash: %v", ErrDecode, err)
	}
	return presentation, recovery, nil
}

// LockToken builds a UMP token locking script for pubKey. The first six
// entries of fields fill positions 0 through 5 (missing ones are left
// empty); any further entries follow the two hashes.
func LockToken(pubKey *secp256k1.PublicKey, presentation, recovery types.Hash, fields [][]byte) (*script.Script, error) {
	all := make([][]byte, presentationHashField, presentationHashField+2+len(fields))
	n := copy(all, fields)
	all = append(all, presentation[:], recovery[:])
	all = append(all, fields[n:]...)
	return pushdrop.Lock(pubKey, all)
}
