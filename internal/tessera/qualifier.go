package tessera

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Encoded qualifiers are two-byte big-endian integers instead of arbitrary
// column names. Keeping them numeric lets the filter layer replace map
// lookups with array indexing sized from the expression's qualifier range.

const encodedQualifierWidth = 2

// MaxEncodedQualifier is the largest column number the encoding can carry.
const MaxEncodedQualifier = 1<<16 - 1

var ErrBadQualifier = errors.New("malformed encoded qualifier")

// EncodeQualifier renders a column number as its stored qualifier bytes.
func EncodeQualifier(q int) []byte {
	b := make([]byte, encodedQualifierWidth)
	binary.BigEndian.PutUint16(b, uint16(q))
	return b
}

// DecodeQualifier parses stored qualifier bytes back to a column number.
// A width mismatch means the cell does not belong to an encoded-qualifier
// table; that is fatal for the row it came from.
func DecodeQualifier(b []byte) (int, error) {
	if len(b) != encodedQualifierWidth {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrBadQualifier, len(b), encodedQualifierWidth)
	}
	return int(binary.BigEndian.Uint16(b)), nil
}
