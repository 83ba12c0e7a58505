// Package wire implements spec.md §6's external interface: request and
// response messages framed as length-prefixed serialized structures,
// each request carrying a region/epoch/isolation context and each
// response carrying an error envelope plus a structured txn_result.
//
// There is no generated-stub RPC framework behind this (no grpc, no
// protobuf): a Frame is a method name plus a gob-encoded body, written
// to a net.Conn behind a 4-byte big-endian length prefix, matching the
// wire protocol's own textual description rather than any particular
// ecosystem RPC library.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame, independent of
// RequestSizeExceeded's application-level request-body check — this
// is the transport's own guard against a corrupt or hostile length
// prefix driving an unbounded allocation.
const maxFrameSize = 64 << 20

// writeFrame gob-encodes payload and writes it to w as a 4-byte
// big-endian length prefix followed by the encoded bytes.
func writeFrame(w io.Writer, payload any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame from r and gob-decodes it
// into payload, which must be a pointer.
func readFrame(r io.Reader, payload any) error {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(lenPrefix[:])
	if size > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds max frame size %d", size, maxFrameSize)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(payload); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
