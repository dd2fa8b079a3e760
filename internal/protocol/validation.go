package protocol

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// ValidateMessage validates the frame envelope
func ValidateMessage(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	if msg.Type == "" {
		return fmt.Errorf("message type is empty")
	}

	return nil
}

// ValidateAddress checks a payout destination before it is ever recorded
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address is empty")
	}

	if !common.IsHexAddress(addr) {
		return fmt.Errorf("invalid address: %s", addr)
	}

	return nil
}

// ValidateVec3 rejects non-finite coordinates. A NaN that slips into a
// position would poison every distance check after it.
func ValidateVec3(v Vec3) error {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("coordinate is not finite")
		}
	}

	return nil
}

// ValidateResourceID validates a harvest target id
func ValidateResourceID(id string) error {
	if id == "" {
		return fmt.Errorf("resource ID is empty")
	}

	if len(id) > 64 {
		return fmt.Errorf("resource ID too long")
	}

	return nil
}
