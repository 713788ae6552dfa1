// Package pushdrop decodes and builds push-drop locking scripts.
//
// A push-drop script embeds an ordered list of data fields in a spendable
// output. The fields are pushed and then dropped from the stack so that the
// output is still locked by a single public key:
//
//	<pubkey> OP_CHECKSIG <field 0> ... <field n-1> OP_2DROP ... [OP_DROP]
//
// The lock-before form is read with the go-sdk push-drop template; this
// package adds the lock-after form and a strict check of the field and drop
// area, which the template does not perform.
package pushdrop

import (
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/script"
	sdkpushdrop "github.com/bsv-blockchain/go-sdk/transaction/template/pushdrop"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ErrMalformed is wrapped by every Decode failure.
var ErrMalformed = errors.New("malformed push-drop script")

// Position says where the locking key sits relative to the fields.
type Position int

const (
	LockBefore Position = iota
	LockAfter
)

// Token is a decoded push-drop output.
type Token struct {
	LockingPublicKey *secp256k1.PublicKey
	Fields           [][]byte
	Position         Position
}

// Decode parses a push-drop locking script.
func Decode(s *script.Script) (*Token, error) {
	if s == nil || len(*s) == 0 {
		return nil, fmt.Errorf("%w: empty script", ErrMalformed)
	}
	chunks, err := s.Chunks()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(chunks) < 3 {
		return nil, fmt.Errorf("%w: %d chunks is too short", ErrMalformed, len(chunks))
	}

	switch {
	case chunks[1].Op == script.OpCHECKSIG:
		return decodeLockBefore(s, chunks)
	case chunks[len(chunks)-1].Op == script.OpCHECKSIG:
		return decodeLockAfter(chunks)
	default:
		return nil, fmt.Errorf("%w: no OP_CHECKSIG next to the locking key", ErrMalformed)
	}
}

func decodeLockBefore(s *script.Script, chunks []*script.ScriptChunk) (*Token, error) {
	if isDrop(chunks[2].Op) {
		return nil, fmt.Errorf("%w: no fields", ErrMalformed)
	}
	pd := sdkpushdrop.Decode(s)
	if pd == nil || pd.LockingPublicKey == nil {
		return nil, fmt.Errorf("%w: locking key is not a public key", ErrMalformed)
	}
	key, err := secp256k1.ParsePubKey(pd.LockingPublicKey.Compressed())
	if err != nil {
		return nil, fmt.Errorf("%w: locking key: %v", ErrMalformed, err)
	}

	// The template takes every chunk up to the first drop as a field.
	n := len(pd.Fields)
	for i, c := range chunks[2 : 2+n] {
		if _, ok := pushValue(c); !ok {
			return nil, fmt.Errorf("%w: opcode 0x%02x in field %d is not a push", ErrMalformed, c.Op, i)
		}
	}
	if err := checkDrops(chunks[2+n:], n); err != nil {
		return nil, err
	}

	fields := make([][]byte, n)
	for i, f := range pd.Fields {
		fields[i] = append([]byte{}, f...)
	}
	return &Token{LockingPublicKey: key, Fields: fields, Position: LockBefore}, nil
}

func decodeLockAfter(chunks []*script.ScriptChunk) (*Token, error) {
	key, err := secp256k1.ParsePubKey(chunks[len(chunks)-2].Data)
	if err != nil {
		return nil, fmt.Errorf("%w: locking key: %v", ErrMalformed, err)
	}

	body := chunks[:len(chunks)-2]
	var fields [][]byte
	for _, c := range body {
		if isDrop(c.Op) {
			break
		}
		data, ok := pushValue(c)
		if !ok {
			return nil, fmt.Errorf("%w: opcode 0x%02x in field %d is not a push", ErrMalformed, c.Op, len(fields))
		}
		fields = append(fields, data)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no fields", ErrMalformed)
	}
	if err := checkDrops(body[len(fields):], len(fields)); err != nil {
		return nil, err
	}
	return &Token{LockingPublicKey: key, Fields: fields, Position: LockAfter}, nil
}

// checkDrops verifies that chunks consist only of drop opcodes removing
// exactly n stack items.
func checkDrops(chunks []*script.ScriptChunk, n int) error {
	dropped := 0
	for _, c := range chunks {
		switch c.Op {
		case script.Op2DROP:
			dropped += 2
		case script.OpDROP:
			dropped++
		default:
			return fmt.Errorf("%w: unexpected opcode 0x%02x after fields", ErrMalformed, c.Op)
		}
	}
	if dropped != n {
		return fmt.Errorf("%w: %d fields but %d dropped", ErrMalformed, n, dropped)
	}
	return nil
}

func isDrop(op byte) bool {
	return op == script.OpDROP || op == script.Op2DROP
}

// pushValue returns the bytes a chunk pushes onto the stack.
// Small-integer opcodes are expanded to the single byte they push.
func pushValue(c *script.ScriptChunk) ([]byte, bool) {
	switch {
	case c.Op == script.Op0:
		return []byte{0}, true
	case c.Op == script.Op1NEGATE:
		return []byte{0x81}, true
	case c.Op >= script.Op1 && c.Op <= script.Op16:
		return []byte{c.Op - script.Op1 + 1}, true
	case c.Op <= script.OpPUSHDATA4:
		return append([]byte{}, c.Data...), true
	}
	return nil, false
}

// Lock builds a lock-before push-drop script carrying fields.
// Fields use the minimal push encoding, so an empty field decodes as a
// single zero byte.
func Lock(pubKey *secp256k1.PublicKey, fields [][]byte) (*script.Script, error) {
	if pubKey == nil {
		return nil, errors.New("pushdrop: nil locking key")
	}
	if len(fields) == 0 {
		return nil, errors.New("pushdrop: no fields")
	}

	key := pubKey.SerializeCompressed()
	chunks := []*script.ScriptChunk{
		{Op: byte(len(key)), Data: key},
		{Op: script.OpCHECKSIG},
	}
	for _, f := range fields {
		chunks = append(chunks, sdkpushdrop.CreateMinimallyEncodedScriptChunk(f))
	}
	for n := len(fields); n > 0; {
		if n >= 2 {
			chunks = append(chunks, &script.ScriptChunk{Op: script.Op2DROP})
			n -= 2
			continue
		}
		chunks = append(chunks, &script.ScriptChunk{Op: script.OpDROP})
		n--
	}

	s, err := script.NewScriptFromScriptOps(chunks)
	if err != nil {
		return nil, fmt.Errorf("pushdrop: build script: %w", err)
	}
	return s, nil
}
