package ipc

import (
	"bufio"
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLayout(t *testing.T) {
	frame := Encode(Subscribe, []byte(`["window"]`))

	require.Len(t, frame, HeaderSize+10)
	assert.Equal(t, []byte("i3-ipc"), frame[0:6])
	assert.Equal(t, []byte{10, 0, 0, 0}, frame[6:10])
	assert.Equal(t, []byte{2, 0, 0, 0}, frame[10:14])
	assert.Equal(t, `["window"]`, string(frame[14:]))
}

func TestRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		typ     MessageType
		payload []byte
	}{
		{name: "empty get_tree", typ: GetTree, payload: []byte{}},
		{name: "subscribe", typ: Subscribe, payload: SubscribePayload("window", "workspace")},
		{name: "window event", typ: EventWindow, payload: []byte(`{"change":"close","container":{"id":7}}`)},
		{name: "shutdown event", typ: EventShutdown, payload: []byte(`{"change":"exit"}`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteMessage(&buf, tc.typ, tc.payload))

			msg, err := ReadMessage(&buf)
			require.NoError(t, err)
			assert.Equal(t, tc.typ, msg.Type)
			assert.Equal(t, tc.payload, msg.Payload)
			assert.Equal(t, tc.typ.IsEvent(), msg.Type.IsEvent())
		})
	}
}

func TestReadMessagePartialReads(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4096)
	first := Encode(GetTree, payload)
	second := Encode(EventWindow, []byte(`{"change":"new"}`))
	stream := append(append([]byte{}, first...), second...)

	r := iotest.OneByteReader(bytes.NewReader(stream))

	msg, err := ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, GetTree, msg.Type)
	assert.Len(t, msg.Payload, 4096)

	msg, err = ReadMessage(r)
	require.NoError(t, err)
	assert.Equal(t, EventWindow, msg.Type)
	assert.Equal(t, `{"change":"new"}`, string(msg.Payload))

	_, err = ReadMessage(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageSplitAcrossChunks(t *testing.T) {
	frame := Encode(EventWorkspace, []byte(`{"change":"focus"}`))

	for split := 1; split < len(frame); split++ {
		r := io.MultiReader(bytes.NewReader(frame[:split]), bytes.NewReader(frame[split:]))
		msg, err := ReadMessage(r)
		require.NoError(t, err, "split at %d", split)
		assert.Equal(t, EventWorkspace, msg.Type)
		assert.Equal(t, `{"change":"focus"}`, string(msg.Payload))
	}
}

func TestReadMessageErrors(t *testing.T) {
	t.Run("bad magic", func(t *testing.T) {
		frame := Encode(GetTree, nil)
		copy(frame, "i4-ipc")
		_, err := ReadMessage(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("truncated payload", func(t *testing.T) {
		frame := Encode(GetTree, []byte("0123456789"))
		_, err := ReadMessage(bytes.NewReader(frame[:len(frame)-3]))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("truncated header", func(t *testing.T) {
		frame := Encode(GetTree, nil)
		_, err := ReadMessage(bytes.NewReader(frame[:5]))
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("clean end of stream", func(t *testing.T) {
		_, err := ReadMessage(bytes.NewReader(nil))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("oversized length", func(t *testing.T) {
		frame := Encode(GetTree, nil)
		frame[9] = 0x7f
		_, err := ReadMessage(bytes.NewReader(frame))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})
}

func TestMessageTypeString(t *testing.T) {
	assert.Equal(t, "get_tree", GetTree.String())
	assert.Equal(t, "window", EventWindow.String())
	assert.Equal(t, "type(0x63)", MessageType(0x63).String())
	assert.False(t, GetWorkspaces.IsEvent())
	assert.True(t, EventOutput.IsEvent())
}

func TestFrameBuffered(t *testing.T) {
	first := Encode(EventWindow, []byte(`{"change":"close"}`))
	second := Encode(EventWindow, []byte(`{"change":"new"}`))
	stream := append(append([]byte{}, first...), second[:HeaderSize+3]...)

	br := bufio.NewReader(bytes.NewReader(stream))
	_, err := br.Peek(len(stream))
	require.NoError(t, err)
	assert.True(t, FrameBuffered(br))

	_, err = ReadMessage(br)
	require.NoError(t, err)
	assert.False(t, FrameBuffered(br), "second frame is incomplete")
}
