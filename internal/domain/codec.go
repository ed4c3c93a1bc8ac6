package domain

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// frame: [kind u8][device u8][timestamp u64 LE][len u8][payload][crc32 LE]
const (
	headerLen  = 11
	trailerLen = 4

	// MaxEncodedSize is the largest frame Encode can produce. I/O buffers
	// are sized from it.
	MaxEncodedSize = headerLen + MaxPayloadSize + trailerLen
)

var (
	ErrBufferTooSmall = errors.New("encode buffer too small")
	ErrShortFrame     = errors.New("short frame")
	ErrChecksum       = errors.New("frame checksum mismatch")
	ErrUnknownKind    = errors.New("unknown packet kind")
	ErrUnknownDevice  = errors.New("unknown device id")
)

// EncodedLen returns the frame size of p.
func EncodedLen(p Packet) int {
	switch v := p.(type) {
	case TmPacket:
		return headerLen + v.Payload.Len() + trailerLen
	default:
		return 0
	}
}

// Encode writes p into buf and returns the encoded frame, a sub-slice of buf.
func Encode(p Packet, buf []byte) ([]byte, error) {
	tm, ok := p.(TmPacket)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownKind, p)
	}
	n := headerLen + tm.Payload.Len() + trailerLen
	if len(buf) < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, n, len(buf))
	}
	buf[0] = byte(KindTelemetry)
	buf[1] = byte(tm.Device)
	binary.LittleEndian.PutUint64(buf[2:10], uint64(tm.Timestamp))
	buf[10] = tm.Payload.n
	copy(buf[headerLen:], tm.Payload.data[:tm.Payload.n])
	body := n - trailerLen
	binary.LittleEndian.PutUint32(buf[body:n], crc32.ChecksumIEEE(buf[:body]))
	return buf[:n], nil
}

// Decode decodes exactly one frame.
func Decode(b []byte) (Packet, error) {
	p, n, err := DecodeFrame(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, fmt.Errorf("trailing %d bytes after frame", len(b)-n)
	}
	return p, nil
}

// DecodeFrame decodes the first frame in b and reports how many bytes it
// consumed.
func DecodeFrame(b []byte) (Packet, int, error) {
	if len(b) < headerLen {
		return nil, 0, ErrShortFrame
	}
	if Kind(b[0]) != KindTelemetry {
		return nil, 0, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, b[0])
	}
	plen := int(b[10])
	if plen > MaxPayloadSize {
		return nil, 0, fmt.Errorf("%w: %d", ErrPayloadTooLarge, plen)
	}
	n := headerLen + plen + trailerLen
	if len(b) < n {
		return nil, 0, ErrShortFrame
	}
	body := n - trailerLen
	if crc32.ChecksumIEEE(b[:body]) != binary.LittleEndian.Uint32(b[body:n]) {
		return nil, 0, ErrChecksum
	}
	dev := DeviceID(b[1])
	if !dev.Valid() {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnknownDevice, b[1])
	}
	tm := TmPacket{
		Device:    dev,
		Timestamp: Timestamp(binary.LittleEndian.Uint64(b[2:10])),
	}
	tm.Payload.n = uint8(copy(tm.Payload.data[:], b[headerLen:body]))
	return tm, n, nil
}

// FrameReader reads back-to-back frames from a byte stream.
type FrameReader struct {
	r   *bufio.Reader
	buf [MaxEncodedSize]byte
	off int64
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 4096)}
}

// Offset is the number of bytes consumed by complete frames so far.
func (fr *FrameReader) Offset() int64 { return fr.off }

// Next returns the next packet. It returns io.EOF at a clean frame
// boundary and io.ErrUnexpectedEOF when the stream ends mid-frame.
func (fr *FrameReader) Next() (Packet, error) {
	hdr := fr.buf[:headerLen]
	if _, err := io.ReadFull(fr.r, hdr); err != nil {
		return nil, err
	}
	plen := int(hdr[10])
	if plen > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, plen)
	}
	n := headerLen + plen + trailerLen
	if _, err := io.ReadFull(fr.r, fr.buf[headerLen:n]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	p, _, err := DecodeFrame(fr.buf[:n])
	if err != nil {
		return nil, err
	}
	fr.off += int64(n)
	return p, nil
}
