package tsm

import (
	"encoding/binary"
	"errors"

	"github.com/vnodedb/tskv/internal/encoding"
)

// magic identifies a TSM file; chosen to be recognizable as ASCII "TSM1" in
// a hex dump rather than bit-compatible with anything else.
const magic uint64 = 0x00000000314d5354

const formatVersion1 = 1

// ErrBadFooter is returned when a TSM file's trailing footer does not
// parse, most likely because the file was truncated mid-write.
var ErrBadFooter = errors.New("tsm: bad footer")

// footerEncodedLength is fixed: the index handle both occupies at most
// encoding.MaxVarint64Length*2 bytes wide, so the footer is written with
// that much room padded with zeros, followed by the version and magic.
const footerEncodedLength = 2*encoding.MaxVarint64Length + 1 + 8

type footer struct {
	IndexHandle   Handle
	FormatVersion uint8
}

func (f footer) encode() []byte {
	buf := make([]byte, footerEncodedLength)
	n := copy(buf, f.IndexHandle.encode(nil))
	for i := n; i < footerEncodedLength-9; i++ {
		buf[i] = 0
	}
	buf[footerEncodedLength-9] = f.FormatVersion
	binary.LittleEndian.PutUint64(buf[footerEncodedLength-8:], magic)
	return buf
}

func decodeFooter(data []byte) (footer, error) {
	if len(data) < footerEncodedLength {
		return footer{}, ErrBadFooter
	}
	tail := data[len(data)-footerEncodedLength:]
	if binary.LittleEndian.Uint64(tail[footerEncodedLength-8:]) != magic {
		return footer{}, ErrBadFooter
	}
	s := encoding.NewSlice(tail[:footerEncodedLength-9])
	handle, ok := decodeHandle(s)
	if !ok {
		return footer{}, ErrBadFooter
	}
	return footer{IndexHandle: handle, FormatVersion: tail[footerEncodedLength-9]}, nil
}
