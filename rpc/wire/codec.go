package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/velum/chaind/lib/checksum"
)

// Frame layout: type(4) id(4) checksum(4) payloadLen(4) payload.
// The checksum covers the payload only. Payload fields are length-prefixed
// in a fixed order: signature(2+n) hash(2+n) data(4+n) hashes(2 count, 2+n each).

const (
	headerLen     = 16
	maxPayloadLen = 16 << 20
)

var (
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	ErrFrameTooLarge    = errors.New("frame exceeds maximum payload size")
	ErrTruncatedFrame   = errors.New("truncated frame")
)

func Encode(w io.Writer, msg *Message) error {
	payload := appendPayload(nil, msg)

	header := make([]byte, headerLen)
	binary.BigEndian.PutUint32(header[0:4], uint32(msg.Type))
	binary.BigEndian.PutUint32(header[4:8], msg.ID)
	binary.BigEndian.PutUint32(header[8:12], uint32(checksum.CalculateCheckSum(payload)))
	binary.BigEndian.PutUint32(header[12:16], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

func Decode(r io.Reader) (*Message, error) {
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	payloadLen := binary.BigEndian.Uint32(header[12:16])
	if payloadLen > maxPayloadLen {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	}

	want := binary.BigEndian.Uint32(header[8:12])
	if uint32(checksum.CalculateCheckSum(payload)) != want {
		return nil, ErrChecksumMismatch
	}

	msg := &Message{
		Type: Type(binary.BigEndian.Uint32(header[0:4])),
		ID:   binary.BigEndian.Uint32(header[4:8]),
	}
	if err := parsePayload(payload, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func appendPayload(buf []byte, msg *Message) []byte {
	buf = appendBytes16(buf, msg.Signature)
	buf = appendBytes16(buf, msg.Hash)
	buf = appendBytes32(buf, msg.Data)

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(msg.Hashes)))
	for _, h := range msg.Hashes {
		buf = appendBytes16(buf, h)
	}
	return buf
}

func parsePayload(buf []byte, msg *Message) error {
	var err error
	if msg.Signature, buf, err = readBytes16(buf); err != nil {
		return err
	}
	if msg.Hash, buf, err = readBytes16(buf); err != nil {
		return err
	}
	if msg.Data, buf, err = readBytes32(buf); err != nil {
		return err
	}

	if len(buf) < 2 {
		return ErrTruncatedFrame
	}
	count := int(binary.BigEndian.Uint16(buf))
	buf = buf[2:]
	for i := 0; i < count; i++ {
		var h []byte
		if h, buf, err = readBytes16(buf); err != nil {
			return err
		}
		msg.Hashes = append(msg.Hashes, h)
	}
	return nil
}

func appendBytes16(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(b)))
	return append(buf, b...)
}

func appendBytes32(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func readBytes16(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 2 {
		return nil, nil, ErrTruncatedFrame
	}
	n := int(binary.BigEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < n {
		return nil, nil, ErrTruncatedFrame
	}
	if n == 0 {
		return nil, buf, nil
	}
	return buf[:n:n], buf[n:], nil
}

func readBytes32(buf []byte) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, ErrTruncatedFrame
	}
	n := int(binary.BigEndian.Uint32(buf))
	buf = buf[4:]
	if len(buf) < n {
		return nil, nil, ErrTruncatedFrame
	}
	if n == 0 {
		return nil, buf, nil
	}
	return buf[:n:n], buf[n:], nil
}
