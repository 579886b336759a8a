package render

import (
	"context"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/globe/geom"
	"github.com/aukilabs/globe/quadtree"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	MsgTypeFrame  = "frame"
	MsgTypePing   = "ping"
	MsgTypePong   = "pong"
	MsgTypeCamera = "camera"
	MsgTypeError  = "error"

	ErrTypeMsgInvalid   = "msg_invalid"
	ErrTypeIdle         = "idle_connection"
	ErrTypeStreamClosed = "stream_closed"

	sendChanSize = 4
)

// Msg is a message exchanged with a frame stream client.
type Msg struct {
	Type      string          `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Frame     *quadtree.Frame `json:"frame,omitempty"`
	Camera    *CameraMsg      `json:"camera,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// CameraMsg is a camera sent by a client.
type CameraMsg struct {
	Position       [3]float64 `json:"position"`
	Target         [3]float64 `json:"target"`
	Up             [3]float64 `json:"up"`
	FovY           float64    `json:"fov_y"`
	AspectRatio    float64    `json:"aspect_ratio"`
	ViewportHeight float64    `json:"viewport_height"`
}

// Camera returns the camera described by the message. A zero up vector is
// the Z axis.
func (m CameraMsg) Camera() (geom.Camera, error) {
	position := geom.NewVector3(m.Position[0], m.Position[1], m.Position[2])
	target := geom.NewVector3(m.Target[0], m.Target[1], m.Target[2])
	up := geom.NewVector3(m.Up[0], m.Up[1], m.Up[2])
	if up == (geom.Vector3{}) {
		up = geom.NewVector3(0, 0, 1)
	}

	var err error
	switch {
	case geom.Distance(position, target) < geom.Epsilon5:
		err = errors.New("camera position and target are the same")

	case geom.Cross(geom.Normalized(geom.Sub(target, position)), geom.Normalized(up)).Length() < geom.Epsilon5:
		err = errors.New("camera up is parallel to its direction")

	case m.FovY <= 0 || m.FovY >= math.Pi:
		err = errors.New("camera field of view out of range").WithTag("fov_y", m.FovY)

	case m.AspectRatio <= 0:
		err = errors.New("camera aspect ratio is not positive").WithTag("aspect_ratio", m.AspectRatio)

	case m.ViewportHeight <= 0:
		err = errors.New("camera viewport height is not positive").WithTag("viewport_height", m.ViewportHeight)
	}
	if err != nil {
		return geom.Camera{}, errors.New("invalid camera").
			WithType(ErrTypeMsgInvalid).
			Wrap(err)
	}

	return geom.LookAt(position, target, up, m.FovY, m.AspectRatio, m.ViewportHeight), nil
}

// NewCameraMsg describes a camera looking at target.
func NewCameraMsg(position, target, up geom.Vector3, fovY, aspectRatio, viewportHeight float64) CameraMsg {
	return CameraMsg{
		Position:       [3]float64{position.X, position.Y, position.Z},
		Target:         [3]float64{target.X, target.Y, target.Z},
		Up:             [3]float64{up.X, up.Y, up.Z},
		FovY:           fovY,
		AspectRatio:    aspectRatio,
		ViewportHeight: viewportHeight,
	}
}

// Stream is a consumer that sends frames to websocket clients as JSON. A
// client still sending the previous frame skips the next ones.
type Stream struct {
	// The time a client can stay silent before being disconnected. Zero
	// keeps silent clients connected.
	IdleTimeout time.Duration

	// Called with the cameras sent by clients. Camera messages are ignored
	// when nil.
	OnCamera func(geom.Camera)

	mutex     sync.RWMutex
	clients   map[*streamClient]struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type streamClient struct {
	frames chan []byte
}

type received struct {
	msg Msg
	err error
}

func NewStream() *Stream {
	return &Stream{
		clients: make(map[*streamClient]struct{}),
		done:    make(chan struct{}),
	}
}

// Len returns the number of connected clients.
func (s *Stream) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

func (s *Stream) HandleFrame(f quadtree.Frame) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if len(s.clients) == 0 {
		return
	}

	b, err := json.Marshal(Msg{
		Type:  MsgTypeFrame,
		Frame: &f,
	})
	if err != nil {
		logs.WithTag("frame", f.Number).Error(errors.New("encoding frame failed").Wrap(err))
		return
	}

	for c := range s.clients {
		select {
		case c.frames <- b:
		default:
			streamDroppedFrames.Inc()
		}
	}
}

// Close disconnects every client and refuses new ones.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Server returns the websocket server accepting the stream clients.
func (s *Stream) Server(ctx context.Context) websocket.Server {
	return websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()
			s.Handle(ctx, conn)
		},
	}
}

// Handle streams frames to the client connected with conn until it
// disconnects, the context is done, or the stream is closed.
func (s *Stream) Handle(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &streamClient{
		frames: make(chan []byte, sendChanSize),
	}
	if !s.add(c) {
		return
	}
	defer s.remove(c)

	remoteAddr := ""
	if req := conn.Request(); req != nil {
		remoteAddr = req.RemoteAddr
	}
	logs.WithTag("remote_addr", remoteAddr).Info("frame stream client connected")

	receivedChan := make(chan received)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		startReceiving(ctx, conn, receivedChan)
	}()

	var idle <-chan time.Time
	var idleTimer *time.Timer
	if s.IdleTimeout > 0 {
		idleTimer = time.NewTimer(s.IdleTimeout)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}

	var err error
	for err == nil {
		select {
		case <-ctx.Done():
			err = ctx.Err()

		case <-s.done:
			err = errors.New("frame stream closed").WithType(ErrTypeStreamClosed)

		case <-idle:
			err = errors.New("idle connection").
				WithType(ErrTypeIdle).
				WithTag("duration", s.IdleTimeout)

		case b := <-c.frames:
			err = send(conn, MsgTypeFrame, b)

		case r := <-receivedChan:
			if idleTimer != nil {
				idleTimer.Stop()
				idleTimer.Reset(s.IdleTimeout)
			}

			switch {
			case errors.IsType(r.err, ErrTypeMsgInvalid):
				err = reply(conn, Msg{Type: MsgTypeError, Error: r.err.Error()})
			case r.err != nil:
				err = r.err
			default:
				err = s.handleMsg(conn, r.msg)
			}
		}
	}

	conn.Close()
	cancel()
	wg.Wait()

	if isDisconnection(err) {
		logs.WithTag("remote_addr", remoteAddr).
			WithTag("reason", err.Error()).
			Info("frame stream client disconnected")
		return
	}

	instrumentStreamError(err)
	logs.WithTag("remote_addr", remoteAddr).
		Warn(errors.New("frame stream client disconnected").Wrap(err))
}

func (s *Stream) add(c *streamClient) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	select {
	case <-s.done:
		return false
	default:
	}

	s.clients[c] = struct{}{}
	streamClients.Inc()
	return true
}

func (s *Stream) remove(c *streamClient) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.clients, c)
	streamClients.Dec()
}

func (s *Stream) handleMsg(conn *websocket.Conn, msg Msg) error {
	instrumentReceived(msg.Type)

	switch msg.Type {
	case MsgTypePing:
		return reply(conn, Msg{
			Type:      MsgTypePong,
			RequestID: msg.RequestID,
			Timestamp: time.Now().UnixMilli(),
		})

	case MsgTypeCamera:
		if msg.Camera == nil {
			return replyError(conn, msg, errors.New("camera message without camera"))
		}

		camera, err := msg.Camera.Camera()
		if err != nil {
			return replyError(conn, msg, err)
		}

		if s.OnCamera != nil {
			s.OnCamera(camera)
		}
		return nil

	default:
		return replyError(conn, msg, errors.New("unknown message type").WithTag("type", msg.Type))
	}
}

func startReceiving(ctx context.Context, conn *websocket.Conn, receivedChan chan<- received) {
	for {
		var b []byte
		var r received

		if err := websocket.Message.Receive(conn, &b); err != nil {
			r.err = err
		} else if err := json.Unmarshal(b, &r.msg); err != nil {
			r.err = errors.New("decoding message failed").
				WithType(ErrTypeMsgInvalid).
				Wrap(err)
		}

		select {
		case <-ctx.Done():
			return
		case receivedChan <- r:
		}

		if r.err != nil && !errors.IsType(r.err, ErrTypeMsgInvalid) {
			return
		}
	}
}

func reply(conn *websocket.Conn, msg Msg) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.New("encoding message failed").
			WithTag("type", msg.Type).
			Wrap(err)
	}
	return send(conn, msg.Type, b)
}

func replyError(conn *websocket.Conn, msg Msg, err error) error {
	logs.WithTag("type", msg.Type).
		WithTag("request_id", msg.RequestID).
		Debug(err)

	return reply(conn, Msg{
		Type:      MsgTypeError,
		RequestID: msg.RequestID,
		Error:     err.Error(),
	})
}

func send(conn *websocket.Conn, msgType string, b []byte) error {
	if err := websocket.Message.Send(conn, string(b)); err != nil {
		return errors.New("sending message failed").
			WithTag("type", msgType).
			Wrap(err)
	}
	instrumentSent(msgType, len(b))
	return nil
}

func isDisconnection(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.IsType(err, ErrTypeStreamClosed)
}
