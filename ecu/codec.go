package ecu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedPayload is returned when a field cannot be cut out of a payload
// or does not hex-decode.
var ErrMalformedPayload = errors.New("malformed payload")

// ParseUnsigned extracts a nibble-aligned field from a hex-ASCII payload.
//
// The payload carries one byte per character pair, least significant byte
// first, so the pairs of the field are reversed before hex-decoding.
func ParseUnsigned(payload string, bitOffset, bitLength int) (uint64, error) {
	if bitOffset < 0 || bitLength <= 0 || bitOffset%4 != 0 || bitLength%4 != 0 || bitLength > 64 {
		return 0, fmt.Errorf("%w: bad field offset=%d length=%d", ErrMalformedPayload, bitOffset, bitLength)
	}

	start := bitOffset / 4
	end := start + bitLength/4
	if end > len(payload) {
		return 0, fmt.Errorf("%w: field [%d:%d] beyond %d characters", ErrMalformedPayload, start, end, len(payload))
	}

	field := payload[start:end]

	value, err := strconv.ParseUint(reversePairs(field), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not hex", ErrMalformedPayload, field)
	}
	return value, nil
}

// ParseSigned reads a field with ParseUnsigned and reinterprets the lower
// 16 bits as a two's-complement value. Only 16-bit signed fields exist on
// the Curtis frames.
func ParseSigned(payload string, bitOffset, bitLength int) (int16, error) {
	value, err := ParseUnsigned(payload, bitOffset, bitLength)
	if err != nil {
		return 0, err
	}
	return int16(uint16(value)), nil
}

// EncodeUnsigned is the inverse of ParseUnsigned for a byte-aligned field
// starting at offset zero: it renders value as bitLength/4 hex characters in
// payload byte order.
func EncodeUnsigned(value uint64, bitLength int) string {
	nibbles := bitLength / 4
	hex := fmt.Sprintf("%0*X", nibbles, value)
	if len(hex) > nibbles {
		hex = hex[len(hex)-nibbles:]
	}

	return reversePairs(hex)
}

// reversePairs splits s into two-character chunks from the left and joins
// them in reverse order.
func reversePairs(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	last := (len(s) - 1) / 2 * 2
	for i := last; i >= 0; i -= 2 {
		end := i + 2
		if end > len(s) {
			end = len(s)
		}
		b.WriteString(s[i:end])
	}
	return b.String()
}
