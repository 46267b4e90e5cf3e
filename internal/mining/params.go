package mining

import (
	"fmt"
	"strconv"

	apperrors "github.com/smartgrocer/basket-analytics-platform/pkg/errors"
)

// Params are the thresholds of one mining run. They are immutable for the
// run's duration; changing them means starting a new run.
type Params struct {
	MinSupport    float64 `json:"min_support"`
	MinConfidence float64 `json:"min_confidence"`
	MaxLen        int     `json:"max_len,omitempty"`
}

// Validate rejects out-of-range parameters before any work starts. Both
// thresholds live in (0,1]. MaxLen caps itemset size, zero meaning unbounded.
func (p Params) Validate() error {
	if p.MinSupport <= 0 || p.MinSupport > 1 {
		return fmt.Errorf("%w: min_support %v outside (0,1]", apperrors.ErrInvalidParameter, p.MinSupport)
	}
	if p.MinConfidence <= 0 || p.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence %v outside (0,1]", apperrors.ErrInvalidParameter, p.MinConfidence)
	}
	if p.MaxLen < 0 {
		return fmt.Errorf("%w: max_len %d is negative", apperrors.ErrInvalidParameter, p.MaxLen)
	}
	return nil
}

// Key returns a canonical string form of the params for cache keys. Floats
// are formatted at full precision so distinct thresholds never collide.
func (p Params) Key() string {
	return "s=" + strconv.FormatFloat(p.MinSupport, 'g', -1, 64) +
		";c=" + strconv.FormatFloat(p.MinConfidence, 'g', -1, 64) +
		";l=" + strconv.Itoa(p.MaxLen)
}
