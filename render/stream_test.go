package render

import (
	"context"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/quadtree"
	"github.com/aukilabs/globe/tiling"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newTestStream(t *testing.T, s *Stream) *websocket.Conn {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server := httptest.NewServer(s.Server(ctx))
	t.Cleanup(server.Close)

	conn, err := websocket.Dial(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"",
		"http://localhost",
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return s.Len() == 1
	}, time.Second, time.Millisecond)
	return conn
}

func sendTestMsg(t *testing.T, conn *websocket.Conn, msg Msg) {
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(conn, string(b)))
}

func receiveTestMsg(t *testing.T, conn *websocket.Conn) Msg {
	var b []byte
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, websocket.Message.Receive(conn, &b))

	var msg Msg
	require.NoError(t, json.Unmarshal(b, &msg))
	return msg
}

func TestStreamFrames(t *testing.T) {
	s := NewStream()
	defer s.Close()

	// Nobody listens yet.
	s.HandleFrame(quadtree.Frame{Number: 1})

	conn := newTestStream(t, s)

	s.HandleFrame(quadtree.Frame{
		Number: 2,
		Tiles: []quadtree.RenderedTile{
			{
				Key:      tiling.NewKey(1, 0, 1),
				Distance: 42,
				Mesh:     &quadtree.Mesh{Width: 2, Height: 2},
			},
		},
		Stats: quadtree.Stats{Rendered: 1},
	})

	msg := receiveTestMsg(t, conn)
	require.Equal(t, MsgTypeFrame, msg.Type)
	require.NotNil(t, msg.Frame)
	require.Equal(t, uint64(2), msg.Frame.Number)
	require.Len(t, msg.Frame.Tiles, 1)
	require.Equal(t, tiling.NewKey(1, 0, 1), msg.Frame.Tiles[0].Key)
	require.Nil(t, msg.Frame.Tiles[0].Mesh)
	require.Equal(t, 1, msg.Frame.Stats.Rendered)
}

func TestStreamDropsFramesOfBusyClients(t *testing.T) {
	s := NewStream()
	defer s.Close()

	c := &streamClient{frames: make(chan []byte, sendChanSize)}
	require.True(t, s.add(c))

	for i := 0; i < sendChanSize+3; i++ {
		s.HandleFrame(quadtree.Frame{Number: uint64(i)})
	}
	require.Len(t, c.frames, sendChanSize)

	s.remove(c)
	require.Zero(t, s.Len())
}

func TestStreamPing(t *testing.T) {
	s := NewStream()
	defer s.Close()
	conn := newTestStream(t, s)

	sendTestMsg(t, conn, Msg{Type: MsgTypePing, RequestID: 21})

	msg := receiveTestMsg(t, conn)
	require.Equal(t, MsgTypePong, msg.Type)
	require.Equal(t, uint32(21), msg.RequestID)
	require.NotZero(t, msg.Timestamp)
}

func TestStreamCamera(t *testing.T) {
	cameras := make(chan geom.Camera, 1)

	s := NewStream()
	s.OnCamera = func(c geom.Camera) {
		cameras <- c
	}
	defer s.Close()
	conn := newTestStream(t, s)

	cm := NewCameraMsg(
		geom.NewVector3(2e7, 0, 0),
		geom.Vector3{},
		geom.Vector3{},
		math.Pi/3,
		1.5,
		720,
	)
	sendTestMsg(t, conn, Msg{Type: MsgTypeCamera, Camera: &cm})

	select {
	case c := <-cameras:
		require.True(t, c.Position.EqualWithEpsilon(geom.NewVector3(2e7, 0, 0), geom.Epsilon7))
		require.True(t, c.Direction.EqualWithEpsilon(geom.NewVector3(-1, 0, 0), geom.Epsilon7))
		require.Equal(t, 1.5, c.AspectRatio)

	case <-time.After(time.Second):
		t.Fatal("camera not received")
	}
}

func TestStreamInvalidMessages(t *testing.T) {
	s := NewStream()
	defer s.Close()
	conn := newTestStream(t, s)

	t.Run("unknown type", func(t *testing.T) {
		sendTestMsg(t, conn, Msg{Type: "teleport", RequestID: 3})
		msg := receiveTestMsg(t, conn)
		require.Equal(t, MsgTypeError, msg.Type)
		require.Equal(t, uint32(3), msg.RequestID)
		require.NotEmpty(t, msg.Error)
	})

	t.Run("missing camera", func(t *testing.T) {
		sendTestMsg(t, conn, Msg{Type: MsgTypeCamera, RequestID: 4})
		msg := receiveTestMsg(t, conn)
		require.Equal(t, MsgTypeError, msg.Type)
		require.Equal(t, uint32(4), msg.RequestID)
	})

	t.Run("not json", func(t *testing.T) {
		require.NoError(t, websocket.Message.Send(conn, "{"))
		msg := receiveTestMsg(t, conn)
		require.Equal(t, MsgTypeError, msg.Type)
	})

	t.Run("still connected", func(t *testing.T) {
		sendTestMsg(t, conn, Msg{Type: MsgTypePing, RequestID: 5})
		msg := receiveTestMsg(t, conn)
		require.Equal(t, MsgTypePong, msg.Type)
	})
}

func TestStreamIdleTimeout(t *testing.T) {
	s := NewStream()
	s.IdleTimeout = 10 * time.Millisecond
	defer s.Close()
	newTestStream(t, s)

	require.Eventually(t, func() bool {
		return s.Len() == 0
	}, time.Second, time.Millisecond)
}

func TestStreamClose(t *testing.T) {
	s := NewStream()
	conn := newTestStream(t, s)

	s.Close()
	s.Close()

	var b []byte
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.Error(t, websocket.Message.Receive(conn, &b))
	require.Eventually(t, func() bool {
		return s.Len() == 0
	}, time.Second, time.Millisecond)

	require.False(t, s.add(&streamClient{}))
}

func TestCameraMsgValidation(t *testing.T) {
	valid := NewCameraMsg(
		geom.NewVector3(2e7, 0, 0),
		geom.Vector3{},
		geom.NewVector3(0, 0, 1),
		math.Pi/3,
		1,
		1000,
	)

	tests := []struct {
		name   string
		modify func(m *CameraMsg)
	}{
		{
			name:   "same position and target",
			modify: func(m *CameraMsg) { m.Target = m.Position },
		},
		{
			name:   "up along direction",
			modify: func(m *CameraMsg) { m.Up = [3]float64{1, 0, 0} },
		},
		{
			name:   "no field of view",
			modify: func(m *CameraMsg) { m.FovY = 0 },
		},
		{
			name:   "field of view too wide",
			modify: func(m *CameraMsg) { m.FovY = math.Pi },
		},
		{
			name:   "negative aspect ratio",
			modify: func(m *CameraMsg) { m.AspectRatio = -1 },
		},
		{
			name:   "no viewport",
			modify: func(m *CameraMsg) { m.ViewportHeight = 0 },
		},
	}

	_, err := valid.Camera()
	require.NoError(t, err)

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := valid
			test.modify(&m)

			_, err := m.Camera()
			require.Error(t, err)
			require.Equal(t, ErrTypeMsgInvalid, errors.Type(err))
		})
	}
}
