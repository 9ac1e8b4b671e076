package weights

import (
	"fmt"
	"math"

	"github.com/elys-network/yieldcore/internal/types"
)

// U16Weights is the integer weight vector accepted by the ledger.
type U16Weights struct {
	UIDs    []uint16 `json:"uids"`
	Weights []uint16 `json:"weights"`
}

// ConvertToU16 scales weights so the largest becomes 65535, rounding to nearest, and drops every
// entry that rounds to zero. An all-zero vector yields an empty result.
func ConvertToU16(uids []types.MinerUID, weights []float64) (U16Weights, error) {
	if len(uids) != len(weights) {
		return U16Weights{}, fmt.Errorf("%w: %d uids, %d weights", ErrLengthMismatch, len(uids), len(weights))
	}

	maxWeight := 0.0
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return U16Weights{}, fmt.Errorf("%w: uid %d has %f", ErrInvalidScore, uids[i], w)
		}
		maxWeight = math.Max(maxWeight, w)
	}

	out := U16Weights{UIDs: []uint16{}, Weights: []uint16{}}
	if maxWeight == 0 {
		return out, nil
	}
	for i, w := range weights {
		scaled := uint16(math.Round(w / maxWeight * math.MaxUint16))
		if scaled == 0 {
			continue
		}
		out.UIDs = append(out.UIDs, uint16(uids[i]))
		out.Weights = append(out.Weights, scaled)
	}
	return out, nil
}
