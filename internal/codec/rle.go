package codec

// runLengthMarker flags the first varint of a run as covering more than
// one element; the remaining bits hold the zigzag-encoded delta.
const runLengthMarker = uint64(1) << 63

// encodeRLE appends an RLE-array encoding of deltas: varint(N) followed
// by a greedy left-to-right scan of equal-value runs. A run of length 1
// is just the zigzag-encoded delta; a run of length > 1 has the marker
// bit set on the delta varint, followed by a varint run length.
func encodeRLE(buf []byte, deltas []int64) []byte {
	buf = appendUvarint(buf, uint64(len(deltas)))

	i := 0
	for i < len(deltas) {
		j := i
		for j+1 < len(deltas) && deltas[j+1] == deltas[i] {
			j++
		}

		runLen := j - i + 1
		zz := zigzagEncode(deltas[i])

		if runLen > 1 {
			buf = appendUvarint(buf, zz|runLengthMarker)
			buf = appendUvarint(buf, uint64(runLen))
		} else {
			buf = appendUvarint(buf, zz)
		}

		i = j + 1
	}

	return buf
}

// decodeRLE reads an RLE-array encoded by encodeRLE, rejecting input that
// is truncated or whose runs overrun the declared count.
func decodeRLE(c *cursor) ([]int64, error) {
	n, err := c.readUvarint()
	if err != nil {
		return nil, err
	}

	values := make([]int64, 0, n)
	for uint64(len(values)) < n {
		first, err := c.readUvarint()
		if err != nil {
			return nil, err
		}

		if first&runLengthMarker != 0 {
			zz := first &^ runLengthMarker
			runLen, err := c.readUvarint()
			if err != nil {
				return nil, err
			}

			if uint64(len(values))+runLen > n {
				return nil, errTruncated()
			}

			v := zigzagDecode(zz)
			for k := uint64(0); k < runLen; k++ {
				values = append(values, v)
			}
		} else {
			values = append(values, zigzagDecode(first))
		}
	}

	return values, nil
}
