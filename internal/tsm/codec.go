package tsm

import (
	"errors"
	"math"

	"github.com/vnodedb/tskv/internal/encoding"
)

// ErrCorruptBlock is returned when a block's decoded point stream does not
// parse cleanly.
var ErrCorruptBlock = errors.New("tsm: corrupt block payload")

// encodePoints serializes points (already sorted by Ts) into the
// uncompressed block payload: count-prefixed (ts varsigned, kind byte,
// value) tuples.
func encodePoints(points []Point) []byte {
	buf := make([]byte, 0, len(points)*12)
	buf = encoding.AppendVarint64(buf, uint64(len(points)))
	for _, p := range points {
		buf = encoding.AppendVarsignedint64(buf, p.Ts)
		buf = append(buf, byte(p.Val.Kind))
		switch p.Val.Kind {
		case ValueFloat:
			buf = encoding.AppendFixed64(buf, math.Float64bits(p.Val.Float))
		case ValueInteger:
			buf = encoding.AppendVarsignedint64(buf, p.Val.Int)
		case ValueUnsigned:
			buf = encoding.AppendVarint64(buf, p.Val.Uint)
		case ValueBoolean:
			b := byte(0)
			if p.Val.Bool {
				b = 1
			}
			buf = append(buf, b)
		case ValueBytes:
			buf = encoding.AppendLengthPrefixedSlice(buf, p.Val.Bytes)
		}
	}
	return buf
}

func decodePoints(data []byte) ([]Point, error) {
	s := encoding.NewSlice(data)
	count, ok := s.GetVarint64()
	if !ok {
		return nil, ErrCorruptBlock
	}
	points := make([]Point, 0, count)
	for i := uint64(0); i < count; i++ {
		ts, ok := s.GetVarsignedint64()
		if !ok {
			return nil, ErrCorruptBlock
		}
		kindByte, ok := s.GetBytes(1)
		if !ok {
			return nil, ErrCorruptBlock
		}
		val := Value{Kind: ValueKind(kindByte[0])}
		switch val.Kind {
		case ValueFloat:
			bits, ok := s.GetFixed64()
			if !ok {
				return nil, ErrCorruptBlock
			}
			val.Float = math.Float64frombits(bits)
		case ValueInteger:
			v, ok := s.GetVarsignedint64()
			if !ok {
				return nil, ErrCorruptBlock
			}
			val.Int = v
		case ValueUnsigned:
			v, ok := s.GetVarint64()
			if !ok {
				return nil, ErrCorruptBlock
			}
			val.Uint = v
		case ValueBoolean:
			b, ok := s.GetBytes(1)
			if !ok {
				return nil, ErrCorruptBlock
			}
			val.Bool = b[0] != 0
		case ValueBytes:
			v, ok := s.GetLengthPrefixedSlice()
			if !ok {
				return nil, ErrCorruptBlock
			}
			val.Bytes = append([]byte(nil), v...)
		default:
			return nil, ErrCorruptBlock
		}
		points = append(points, Point{Ts: ts, Val: val})
	}
	return points, nil
}
