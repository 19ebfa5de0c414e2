// Package decoder turns reassembled AIS payloads into vessel messages.
package decoder

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/saviobatista/ais-receiver/internal/types"
)

var (
	// ErrDecodeFailure is returned when the payload decoder fails or yields nothing
	ErrDecodeFailure = errors.New("decode failure")
	// ErrRangeViolation is returned for positions outside the valid lon/lat range.
	// Such messages are dropped without logging.
	ErrRangeViolation = errors.New("position out of range")
)

// PayloadDecoder decodes an armored payload into protocol fields
type PayloadDecoder interface {
	Decode(payload string, fillBits int) (types.Message, error)
}

// Adapter invokes a PayloadDecoder and enriches its output with receipt time
type Adapter struct {
	decoder PayloadDecoder
}

// NewAdapter creates a new Adapter
func NewAdapter(d PayloadDecoder) *Adapter {
	return &Adapter{decoder: d}
}

// Decode decodes one complete payload received at the given time
func (a *Adapter) Decode(payload string, fillBits int, receipt time.Time) (types.Message, error) {
	msg, err := a.decoder.Decode(payload, fillBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrDecodeFailure, payload, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: %q: empty result", ErrDecodeFailure, payload)
	}

	// receipt time wins over any time field the protocol carried
	msg[types.FieldTime] = types.ToSeconds(receipt)
	msg[types.FieldTimestamp] = receipt.UTC().Format(types.TimestampLayout)

	if err := checkRange(msg, types.FieldLongitude, 180); err != nil {
		return nil, err
	}
	if err := checkRange(msg, types.FieldLatitude, 90); err != nil {
		return nil, err
	}

	return msg, nil
}

func checkRange(msg types.Message, field string, limit float64) error {
	v, present := msg[field]
	if !present {
		return nil
	}
	f, ok := types.AsFloat64(v)
	if !ok {
		return nil
	}
	if math.Abs(f) > limit {
		return fmt.Errorf("%w: %s=%v", ErrRangeViolation, field, f)
	}
	return nil
}
