// Package ump indexes User Management Protocol (UMP) tokens admitted to an
// overlay topic and answers point queries about where an account's current
// token lives.
//
// The host engine drives the index through OutputAdmitted, OutputSpent and
// OutputEvicted. Callers resolve a presentation hash, recovery hash or
// outpoint to the newest matching UTXO through Lookup.
package ump

import "github.com/bsv-blockchain/ump-services/pkg/types"

// Record is one indexed UMP token output. Records are written once and
// deleted once; they are never updated in place.
type Record struct {
	types.Outpoint
	PresentationHash types.Hash `json:"presentationHash"`
	RecoveryHash     types.Hash `json:"recoveryHash"`
	// Sequence orders records by insertion; the greatest wins ties.
	Sequence uint64 `json:"sequence"`
}
