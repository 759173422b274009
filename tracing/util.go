package tracing

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var errOverflow = errors.New("tracing: value overflows 256 bits")

// uint256FromBig converts a possibly-nil *big.Int into a *uint256.Int,
// treating nil as zero. core/types.Transaction getters (GasPrice,
// Value, GasFeeCap, GasTipCap) return big.Int; this service's
// CallRequest uses uint256 throughout to match the upstream tracers'
// own convention for gas/value fields.
func uint256FromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return uint256.NewInt(0), nil
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errOverflow
	}
	return u, nil
}
