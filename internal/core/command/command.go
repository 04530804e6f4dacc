// Package command serialises every state mutation through one processor.
//
// Commands submitted for a logical tick are applied in a canonical order
// derived only from their content (priority, payload checksum, peer), never
// from arrival order, so every peer applying the same submissions reaches
// the same state.
package command

import (
	"bytes"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrRejected   = errors.New("command: rejected")
	ErrLate       = errors.New("command: tick already processed")
	ErrNilCommand = errors.New("command: nil command")
	ErrUnknown    = errors.New("command: unknown kind")
	ErrDuplicate  = errors.New("command: kind already registered")
)

// Command is one atomic mutation of state S. Validate must not mutate;
// Execute is only called after Validate succeeded on the same state.
// MarshalBinary encodes the arguments for ordering and journaling.
type Command[S any] interface {
	Kind() string
	Validate(state S) error
	Execute(state S)
	MarshalBinary() ([]byte, error)
}

// Versioned states count successful mutations.
type Versioned interface {
	BumpGeneration() uint64
}

// Submission is a command scheduled for a logical tick.
type Submission[S any] struct {
	Tick     uint64
	Priority int32 // higher runs first
	Peer     uuid.UUID
	Cmd      Command[S]
}

// Result reports the outcome of one processed command.
type Result struct {
	Tick       uint64
	Kind       string
	Peer       uuid.UUID
	Generation uint64 // state generation after the command; 0 if unversioned
	Err        error
}

func (r Result) OK() bool { return r.Err == nil }

// Executed is emitted after a command mutated state.
type Executed struct {
	Tick       uint64
	Seq        int // position within the tick
	Priority   int32
	Kind       string
	Peer       uuid.UUID
	Payload    []byte
	Generation uint64
}

// Rejected is emitted when validation refused a command.
type Rejected struct {
	Tick   uint64
	Kind   string
	Peer   uuid.UUID
	Reason string
}

// Checksum is the ordering key of a command: blake2b-256 over its kind, a
// zero separator and its payload.
func Checksum(kind string, payload []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(payload)
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

type queued[S any] struct {
	sub      Submission[S]
	payload  []byte
	checksum [32]byte
}

func compareQueued[S any](a, b queued[S]) int {
	if a.sub.Priority != b.sub.Priority {
		if a.sub.Priority > b.sub.Priority {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(a.checksum[:], b.checksum[:]); c != 0 {
		return c
	}
	return bytes.Compare(a.sub.Peer[:], b.sub.Peer[:])
}
