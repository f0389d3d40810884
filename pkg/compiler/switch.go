package compiler

import "github.com/bys1/flybytes/pkg/ast"

// DefaultDensityThreshold is the table-vs-lookup cutoff: a key set filling
// at least half of its range gets the dense jump table. Any threshold
// preserves correctness; this one is documented rather than tuned.
const DefaultDensityThreshold = 0.5

type switchStrategy int

const (
	useLookup switchStrategy = iota
	useTable
)

// chooseStrategy selects the dispatch encoding for a switch: an explicit
// caller override always wins; otherwise the density heuristic
// count/(max-min+1) decides.
func chooseStrategy(opt ast.SwitchOption, keys []int, threshold float64) switchStrategy {
	switch opt {
	case ast.ForceTable:
		return useTable
	case ast.ForceLookup:
		return useLookup
	}
	if threshold <= 0 {
		threshold = DefaultDensityThreshold
	}
	low, high := keyRange(keys)
	span := high - low + 1
	if span <= 0 {
		// Range overflowed int; a table is out of the question.
		return useLookup
	}
	density := float64(len(keys)) / float64(span)
	if density >= threshold {
		return useTable
	}
	return useLookup
}

func keyRange(keys []int) (low, high int) {
	low, high = keys[0], keys[0]
	for _, k := range keys[1:] {
		if k < low {
			low = k
		}
		if k > high {
			high = k
		}
	}
	return low, high
}
