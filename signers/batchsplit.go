package signers

import "github.com/tos-network/gtos/common"

// InInstruction is one parsed deposit/instruction derived from an external
// chain block; the unit Batch bundles for minting.
type InInstruction struct {
	Encoded []byte
}

// Batch is a signed bundle of InInstructions derived from one external
// block; the unit of mint on Serai (spec.md GLOSSARY).
type Batch struct {
	ID           uint32
	Block        common.Hash
	Instructions []InInstruction
}

// EncodedLen is the SCALE-equivalent encoded size used against
// MaxBatchSize. This reimplementation does not carry a SCALE codec, so it
// sums a length-prefixed encoding of the same shape, which has identical
// overflow behavior for the split algorithm below.
func (b Batch) EncodedLen() int {
	n := 4 + 32 + 4 // id + block + instruction count
	for _, ins := range b.Instructions {
		n += 4 + len(ins.Encoded)
	}
	return n
}

// SplitBatches greedily fills batches from instructions in order, and on
// overflow pops the last-added instruction, closes the current batch, and
// opens a new one (with a strictly increasing id) carrying the popped
// instruction first. Grounded exactly on the greedy fill-then-split loop
// in processor/scanner/src/report.rs (spec.md scenario F).
//
// Every output batch's EncodedLen is <= maxBatchSize (assuming a single
// instruction alone never exceeds it — if it does, that instruction is
// placed alone in its own oversize batch, since there is no way to split
// an individual instruction further).
func SplitBatches(block common.Hash, startID uint32, instructions []InInstruction, maxBatchSize int) []Batch {
	var batches []Batch
	current := Batch{ID: startID, Block: block}
	nextID := startID + 1

	for _, ins := range instructions {
		current.Instructions = append(current.Instructions, ins)
		if current.EncodedLen() > maxBatchSize && len(current.Instructions) > 1 {
			// Pop the instruction that overflowed, close the batch, and
			// retry it against a fresh one.
			popped := current.Instructions[len(current.Instructions)-1]
			current.Instructions = current.Instructions[:len(current.Instructions)-1]
			batches = append(batches, current)
			current = Batch{ID: nextID, Block: block, Instructions: []InInstruction{popped}}
			nextID++
		}
	}
	batches = append(batches, current)
	return batches
}
