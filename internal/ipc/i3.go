// Package ipc holds the wire codecs spoken by the supported compositors: the
// i3/sway binary framing, Hyprland's line-oriented event socket and the JSON
// documents their query tools return.
package ipc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic prefixes every i3/sway IPC frame.
var Magic = [6]byte{'i', '3', '-', 'i', 'p', 'c'}

// HeaderSize is the magic plus the little-endian length and type words.
const HeaderSize = len(Magic) + 4 + 4

// MaxPayload bounds a single frame. Sway trees are large but never this large.
const MaxPayload = 64 << 20

var (
	ErrBadMagic      = errors.New("ipc: bad magic")
	ErrFrameTooLarge = errors.New("ipc: frame exceeds maximum payload")
)

// MessageType is the type word of a frame. Replies echo the request type;
// events have EventBit set.
type MessageType uint32

const (
	RunCommand    MessageType = 0
	GetWorkspaces MessageType = 1
	Subscribe     MessageType = 2
	GetOutputs    MessageType = 3
	GetTree       MessageType = 4
	GetMarks      MessageType = 5
	GetBarConfig  MessageType = 6
	GetVersion    MessageType = 7
)

// EventBit marks asynchronous event frames.
const EventBit MessageType = 1 << 31

const (
	EventWorkspace       = EventBit | 0
	EventOutput          = EventBit | 1
	EventMode            = EventBit | 2
	EventWindow          = EventBit | 3
	EventBarConfigUpdate = EventBit | 4
	EventBinding         = EventBit | 5
	EventShutdown        = EventBit | 6
	EventTick            = EventBit | 7
)

// IsEvent reports whether the frame was pushed by a subscription.
func (t MessageType) IsEvent() bool {
	return t&EventBit != 0
}

func (t MessageType) String() string {
	switch t {
	case RunCommand:
		return "run_command"
	case GetWorkspaces:
		return "get_workspaces"
	case Subscribe:
		return "subscribe"
	case GetOutputs:
		return "get_outputs"
	case GetTree:
		return "get_tree"
	case GetMarks:
		return "get_marks"
	case GetBarConfig:
		return "get_bar_config"
	case GetVersion:
		return "get_version"
	case EventWorkspace:
		return "workspace"
	case EventOutput:
		return "output"
	case EventMode:
		return "mode"
	case EventWindow:
		return "window"
	case EventBarConfigUpdate:
		return "barconfig_update"
	case EventBinding:
		return "binding"
	case EventShutdown:
		return "shutdown"
	case EventTick:
		return "tick"
	}
	return fmt.Sprintf("type(%#x)", uint32(t))
}

// Message is one decoded frame.
type Message struct {
	Type    MessageType
	Payload []byte
}

// Encode builds a complete frame.
func Encode(typ MessageType, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	copy(frame[0:6], Magic[:])
	binary.LittleEndian.PutUint32(frame[6:10], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[10:14], uint32(typ))
	copy(frame[HeaderSize:], payload)
	return frame
}

// WriteMessage writes one frame in a single Write call.
func WriteMessage(w io.Writer, typ MessageType, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrFrameTooLarge
	}
	if _, err := w.Write(Encode(typ, payload)); err != nil {
		return fmt.Errorf("ipc: write %s: %w", typ, err)
	}
	return nil
}

// ReadMessage reads exactly one frame, looping over short reads until the
// declared payload is drained. A stream that ends cleanly between frames
// returns io.EOF; one that ends inside a frame returns io.ErrUnexpectedEOF.
func ReadMessage(r io.Reader) (Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}
	if !bytes.Equal(header[0:6], Magic[:]) {
		return Message{}, ErrBadMagic
	}

	length := binary.LittleEndian.Uint32(header[6:10])
	typ := MessageType(binary.LittleEndian.Uint32(header[10:14]))
	if length > MaxPayload {
		return Message{}, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	return Message{Type: typ, Payload: payload}, nil
}

// FrameBuffered reports whether br already holds at least one complete frame,
// so a reader can keep decoding without blocking on the connection.
func FrameBuffered(br *bufio.Reader) bool {
	n := br.Buffered()
	if n < HeaderSize {
		return false
	}
	header, err := br.Peek(HeaderSize)
	if err != nil {
		return false
	}
	length := binary.LittleEndian.Uint32(header[6:10])
	return uint64(n) >= uint64(HeaderSize)+uint64(length)
}
