package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	necBitShortMicros float64 = 562.5
	necBitLongMicros  float64 = 1687.5
	necBits                   = 32
	necTolerance              = 0.1
)

var (
	ErrNotNEC    = errors.New("not a NEC frame")
	ErrNECLength = errors.New("NEC frame has less than 32 bits")
	ErrNECBit    = errors.New("NEC bit timing out of range")
)

func within(us int, nominal float64) bool {
	v := float64(us)
	return v > nominal*(1-necTolerance) && v < nominal*(1+necTolerance)
}

// DecodeNEC reads the 32 data bits that follow a NEC header, MSB first, and
// returns them as 8 hex digits.
func DecodeNEC(p Pulses) (string, error) {
	if Classify(p) != NEC {
		return "", ErrNotNEC
	}
	// header mark + header space, then one mark/space pair per bit
	if len(p) < 2+necBits*2 {
		return "", ErrNECLength
	}
	var value uint32
	for i := 0; i < necBits; i++ {
		mark := p[2+i*2]
		space := p[3+i*2]
		if !within(mark, necBitShortMicros) {
			return "", errors.Wrapf(ErrNECBit, "bit %d mark [%v]", i, mark)
		}
		switch {
		case within(space, necBitLongMicros):
			value |= 1 << (necBits - 1 - i)
		case within(space, necBitShortMicros):
		default:
			return "", errors.Wrapf(ErrNECBit, "bit %d space [%v]", i, space)
		}
	}
	return fmt.Sprintf("%08X", value), nil
}
