package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// frameHeaderSize is 8 bytes requestID + 4 bytes payload length
	frameHeaderSize = 12
	// maxFrameSize bounds the payload of a single frame
	maxFrameSize = 64 << 20
)

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", len(data), maxFrameSize)
	}

	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], requestID)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(data)))

	// header and payload in a single write
	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from r using the provided buffer.
// If the buffer is too small, a new buffer is allocated for the payload.
func readFrame(r io.Reader, buf []byte) (uint64, []byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	requestID := binary.BigEndian.Uint64(header[:8])
	contentLength := binary.BigEndian.Uint32(header[8:12])

	if contentLength == 0 {
		return requestID, []byte{}, nil
	}
	if contentLength > maxFrameSize {
		return requestID, nil, fmt.Errorf("frame of %d bytes exceeds the limit of %d bytes", contentLength, maxFrameSize)
	}

	if len(buf) < int(contentLength) {
		buf = make([]byte, contentLength)
	}
	if _, err := io.ReadFull(r, buf[:contentLength]); err != nil {
		return requestID, nil, err
	}

	return requestID, buf[:contentLength], nil
}
