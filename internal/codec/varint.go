package codec

import (
	"github.com/ecowatt/gateway/internal/errors"
)

// appendUvarint appends v to buf as an unsigned base-128 little-endian
// varint and returns the extended slice.
func appendUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

// zigzagEncode maps a signed integer to an unsigned one so small-magnitude
// values (positive or negative) encode compactly under varint.
func zigzagEncode(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

// zigzagDecode is the inverse of zigzagEncode.
func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// cursor reads varints and byte runs out of a fixed buffer, reporting a
// truncated-input error instead of panicking when the buffer runs out.
type cursor struct {
	buf []byte
	pos int
}

func newCursor(buf []byte) *cursor {
	return &cursor{buf: buf}
}

func (c *cursor) readByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, errors.New().New(errors.ErrIntegrityTruncate)
	}

	b := c.buf[c.pos]
	c.pos++

	return b, nil
}

func (c *cursor) readUvarint() (uint64, error) {
	var result uint64
	var shift uint

	for {
		b, err := c.readByte()
		if err != nil {
			return 0, err
		}

		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}

		shift += 7
		if shift >= 64 {
			return 0, errors.New().WithMessage(errors.ErrIntegrityTruncate, "varint overflow")
		}
	}

	return result, nil
}

func (c *cursor) readBytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, errors.New().New(errors.ErrIntegrityTruncate)
	}

	b := c.buf[c.pos : c.pos+n]
	c.pos += n

	return b, nil
}

func (c *cursor) done() bool {
	return c.pos >= len(c.buf)
}

func errTruncated() error {
	return errors.New().New(errors.ErrIntegrityTruncate)
}
