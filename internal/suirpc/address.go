package suirpc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AddressLength is the byte length of Sui object and package ids.
const AddressLength = 32

// ErrInvalidID is returned for ids that are not 0x-prefixed hex of at most
// 64 digits.
var ErrInvalidID = errors.New("suirpc: invalid object id")

// NormalizeID returns id in canonical form: lower-case, 0x prefix, left
// padded to 64 hex digits. "0x2" becomes 0x000...002.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, "0x") && !strings.HasPrefix(id, "0X") {
		return "", fmt.Errorf("%w: %q missing 0x prefix", ErrInvalidID, id)
	}
	digits := id[2:]
	if len(digits) == 0 || len(digits) > 2*AddressLength {
		return "", fmt.Errorf("%w: %q has %d hex digits", ErrInvalidID, id, len(digits))
	}

	padded := "0x" + strings.Repeat("0", 2*AddressLength-len(digits)) + strings.ToLower(digits)
	raw, err := hexutil.Decode(padded)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidID, id, err)
	}
	return hexutil.Encode(raw), nil
}

// ShortID trims leading zeros for display, so the framework package prints
// as 0x2.
func ShortID(id string) string {
	digits := strings.TrimLeft(strings.TrimPrefix(strings.ToLower(id), "0x"), "0")
	if digits == "" {
		digits = "0"
	}
	return "0x" + digits
}
