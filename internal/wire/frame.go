// Package wire implements the framed binary protocol shared by the server and
// the client demultiplexer: a tagged, typed, length-prefixed frame over a long
// lived TCP connection, plus the UTF/int/double payload encoding every
// operation is built from.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Op is a request operation code, carried as the Type field of request
// frames; response frames carry a status code there instead.
type Op int32

const (
	OpRegister        Op = 1
	OpLogin           Op = 2
	OpAddEvent        Op = 3
	OpNewDay          Op = 4
	OpAggrQty         Op = 5
	OpAggrVol         Op = 6
	OpAggrAvg         Op = 7
	OpAggrMax         Op = 8
	OpFilter          Op = 9
	OpWaitSimul       Op = 10
	OpWaitConsec      Op = 11
	OpGetCurrentDay   Op = 12
)

// String names the operation for logging and metric labels.
func (op Op) String() string {
	switch op {
	case OpRegister:
		return "REGISTER"
	case OpLogin:
		return "LOGIN"
	case OpAddEvent:
		return "ADD_EVENT"
	case OpNewDay:
		return "NEW_DAY"
	case OpAggrQty:
		return "AGGR_QTY"
	case OpAggrVol:
		return "AGGR_VOL"
	case OpAggrAvg:
		return "AGGR_AVG"
	case OpAggrMax:
		return "AGGR_MAX"
	case OpFilter:
		return "FILTER"
	case OpWaitSimul:
		return "WAIT_SIMUL"
	case OpWaitConsec:
		return "WAIT_CONSEC"
	case OpGetCurrentDay:
		return "GET_CURRENT_DAY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(op))
	}
}

// Status codes used as the Type field of a response frame.
const (
	StatusOK  int32 = 200
	StatusErr int32 = 500
)

// maxPayload bounds a single frame's payload to guard against a corrupt or
// hostile length field driving an unbounded allocation.
const maxPayload = 16 << 20 // 16 MiB

// Frame is one complete message on the wire: a client-chosen correlation tag,
// an operation/status code, and an operation-specific payload.
type Frame struct {
	Tag     int32
	Type    int32
	Payload []byte
}

// WriteFrame writes one complete frame. Callers share one stream's write mutex
// so that a frame is never interleaved with another writer's bytes — see
// Stream.Send.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > maxPayload {
		return fmt.Errorf("wire: payload too large (%d bytes)", len(f.Payload))
	}
	var header [12]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(f.Tag))
	binary.BigEndian.PutUint32(header[4:8], uint32(f.Type))
	binary.BigEndian.PutUint32(header[8:12], uint32(len(f.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(f.Payload) == 0 {
		return nil
	}
	_, err := w.Write(f.Payload)
	return err
}

// ReadFrame blocks until one complete frame has been read, or returns a
// terminal error (EOF on the header boundary is reported as io.EOF; anything
// else, including a short read mid-frame, is reported as a non-nil error that
// the caller must treat as the stream having failed).
func ReadFrame(r io.Reader) (Frame, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	tag := int32(binary.BigEndian.Uint32(header[0:4]))
	typ := int32(binary.BigEndian.Uint32(header[4:8]))
	length := int32(binary.BigEndian.Uint32(header[8:12]))
	if length < 0 || length > maxPayload {
		return Frame{}, fmt.Errorf("wire: invalid frame length %d", length)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("wire: short frame body: %w", err)
		}
	}
	return Frame{Tag: tag, Type: typ, Payload: payload}, nil
}
