// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/lumen/internal/framelog"
	"github.com/Thermoquad/lumen/internal/logger"
	"github.com/Thermoquad/lumen/pkg/lights"
	"github.com/Thermoquad/lumen/pkg/mavlink"
)

var (
	// ErrClosed is returned for sends on a closed session
	ErrClosed = errors.New("session closed")
	// ErrTimeout is returned when a frame was not written within the send timeout
	ErrTimeout = errors.New("send timed out")
	// ErrNotConnected is returned while the session is between connections
	ErrNotConnected = errors.New("not connected")
)

const (
	defaultSendTimeout = time.Second
	queueSize          = 64
	readBufferSize     = 1024
	initialBackoff     = 1 * time.Second
	maxBackoff         = 30 * time.Second
)

// DialFunc opens a fresh connection for reconnects
type DialFunc func() (Connection, string, error)

// Recorder receives the raw bytes of every frame crossing the link
type Recorder interface {
	Record(dir framelog.Direction, raw []byte) error
}

// Options configure a Session
type Options struct {
	// Local is the sender address stamped on outbound frames
	Local mavlink.Address
	// Channel is passed to frame builders
	Channel uint8
	// SendTimeout bounds QueueMessage; zero means one second
	SendTimeout time.Duration
	// HeartbeatInterval enables periodic HEARTBEAT emission when positive
	HeartbeatInterval time.Duration
	// Heartbeat is the message emitted every HeartbeatInterval
	Heartbeat mavlink.Heartbeat
	// Recorder, when set, gets every inbound and outbound frame
	Recorder Recorder
	// Dial, when set, is used to reconnect after the link drops
	Dial DialFunc
	// Logger defaults to a discarding logger
	Logger *logger.Log
}

// System is a remote MAVLink system seen on the link
type System struct {
	Address   mavlink.Address
	Heartbeat mavlink.Heartbeat
	LastSeen  time.Time
}

type outboundFrame struct {
	build     lights.BuildFunc
	result    chan error
	abandoned atomic.Bool
}

// Session owns a connection. A single writer goroutine drains the outbound
// queue in FIFO order and emits heartbeats; a reader goroutine decodes
// inbound frames, tracks remote systems and fans frames out to subscribers.
// Session implements lights.Transport.
type Session struct {
	opts Options
	log  *logger.Log

	mu       sync.RWMutex
	conn     Connection
	connInfo string

	encoder *mavlink.Encoder
	queue   chan *outboundFrame

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	statsMu sync.Mutex
	stats   *mavlink.Statistics

	sysMu          sync.Mutex
	systems        map[mavlink.Address]System
	autopilot      mavlink.Address
	autopilotFound chan struct{}

	subMu   sync.Mutex
	subs    map[int]chan *mavlink.Frame
	nextSub int
}

var _ lights.Transport = (*Session)(nil)

// NewSession starts a session over conn
func NewSession(conn Connection, connInfo string, opts Options) *Session {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	s := &Session{
		opts:           opts,
		log:            log.With(logger.Fields{"component": "link"}),
		conn:           conn,
		connInfo:       connInfo,
		encoder:        mavlink.NewEncoder(),
		queue:          make(chan *outboundFrame, queueSize),
		done:           make(chan struct{}),
		stats:          mavlink.NewStatistics(),
		systems:        make(map[mavlink.Address]System),
		autopilotFound: make(chan struct{}),
		subs:           make(map[int]chan *mavlink.Frame),
	}

	s.wg.Add(2)
	go s.writeLoop()
	go s.readLoop()

	return s
}

// Dial opens a connection with dial and starts a session that reconnects
// with the same function
func Dial(dial DialFunc, opts Options) (*Session, error) {
	conn, info, err := dial()
	if err != nil {
		return nil, err
	}
	opts.Dial = dial
	return NewSession(conn, info, opts), nil
}

// QueueMessage queues a frame and waits for the writer to send it. It
// returns nil only once the frame bytes were written to the connection.
func (s *Session) QueueMessage(build lights.BuildFunc) error {
	req := &outboundFrame{build: build, result: make(chan error, 1)}

	timer := time.NewTimer(s.opts.SendTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	select {
	case s.queue <- req:
	case <-s.done:
		return ErrClosed
	case <-timer.C:
		s.log.Warn("outbound queue full, frame dropped")
		return ErrTimeout
	}

	select {
	case err := <-req.result:
		return err
	case <-timer.C:
		req.abandoned.Store(true)
		s.log.Warn("frame not written within send timeout")
		return ErrTimeout
	case <-s.done:
		req.abandoned.Store(true)
		return ErrClosed
	}
}

// ConnInfo describes the current connection
func (s *Session) ConnInfo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connInfo
}

// Connected reports whether the session currently holds a connection
func (s *Session) Connected() bool {
	return s.getConn() != nil
}

// Stats returns a snapshot of the inbound frame statistics
func (s *Session) Stats() mavlink.Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.CalculateRates()
	return *s.stats
}

// Systems returns every remote system that sent a heartbeat
func (s *Session) Systems() []System {
	s.sysMu.Lock()
	defer s.sysMu.Unlock()
	out := make([]System, 0, len(s.systems))
	for _, sys := range s.systems {
		out = append(out, sys)
	}
	return out
}

// WaitForAutopilot blocks until an autopilot heartbeat arrives and returns
// the autopilot's address
func (s *Session) WaitForAutopilot(ctx context.Context) (mavlink.Address, error) {
	select {
	case <-s.autopilotFound:
		s.sysMu.Lock()
		defer s.sysMu.Unlock()
		return s.autopilot, nil
	case <-s.done:
		return mavlink.Address{}, ErrClosed
	case <-ctx.Done():
		return mavlink.Address{}, fmt.Errorf("waiting for autopilot: %w", ctx.Err())
	}
}

// Subscribe returns a channel receiving every inbound frame. Frames are
// dropped when the channel is full. The returned function unsubscribes.
func (s *Session) Subscribe(buffer int) (<-chan *mavlink.Frame, func()) {
	ch := make(chan *mavlink.Frame, buffer)

	s.subMu.Lock()
	if s.subs == nil {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close stops the session and closes the connection
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		if s.conn != nil {
			err = s.conn.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()

		s.subMu.Lock()
		for id, c := range s.subs {
			delete(s.subs, id)
			close(c)
		}
		s.subs = nil
		s.subMu.Unlock()
	})
	return err
}

func (s *Session) getConn() Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// writeLoop is the only goroutine that writes to the connection
func (s *Session) writeLoop() {
	defer s.wg.Done()

	var heartbeat <-chan time.Time
	if s.opts.HeartbeatInterval > 0 {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-s.done:
			return

		case req := <-s.queue:
			if req.abandoned.Load() {
				continue
			}
			req.result <- s.writeFrame(req.build(s.opts.Local, s.opts.Channel))

		case <-heartbeat:
			hb := s.opts.Heartbeat
			if err := s.writeFrame(mavlink.NewFrame(s.opts.Local, &hb)); err != nil {
				s.log.WithError(err).Debug("heartbeat not sent")
			}
		}
	}
}

func (s *Session) writeFrame(frame *mavlink.Frame) error {
	if frame == nil {
		return fmt.Errorf("frame builder returned nil")
	}

	data, err := s.encoder.Encode(frame)
	if err != nil {
		return err
	}

	conn := s.getConn()
	if conn == nil {
		s.log.Warn("frame not sent: link is down")
		return ErrNotConnected
	}

	n, err := conn.Write(data)
	if err != nil {
		s.log.WithError(err).Warn("write failed")
		return fmt.Errorf("write failed: %w", err)
	}
	if n != len(data) {
		s.log.Warnf("short write: %d of %d bytes", n, len(data))
		return fmt.Errorf("short write: %w", io.ErrShortWrite)
	}

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.Record(framelog.Outbound, data); err != nil {
			s.log.WithError(err).Warn("failed to record outbound frame")
		}
	}
	return nil
}

// readLoop reads from the connection and reconnects when it is lost
func (s *Session) readLoop() {
	defer s.wg.Done()

	for {
		if s.closed() {
			return
		}

		if !s.readFromConnection() {
			return
		}

		if !s.reconnect() {
			return
		}
	}
}

// readFromConnection decodes frames until the connection fails. Returns
// true if the connection was lost, false if the session is closing.
func (s *Session) readFromConnection() bool {
	conn := s.getConn()
	if conn == nil {
		return true
	}

	decoder := mavlink.NewDecoder()
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			s.handleByte(decoder, b)
		}
		if err != nil {
			if s.closed() {
				return false
			}
			s.log.WithError(err).Warn("connection lost")
			return true
		}
	}
}

func (s *Session) handleByte(decoder *mavlink.Decoder, b byte) {
	frame, err := decoder.DecodeByte(b)
	if err != nil {
		s.statsMu.Lock()
		s.stats.Update(nil, err, nil)
		s.statsMu.Unlock()
		s.log.WithError(err).Debug("decode error")
		return
	}
	if frame == nil {
		return
	}

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.Record(framelog.Inbound, decoder.LastFrameBytes()); err != nil {
			s.log.WithError(err).Warn("failed to record inbound frame")
		}
	}

	anomalies := mavlink.ValidateFrame(frame)
	s.statsMu.Lock()
	s.stats.Update(frame, nil, anomalies)
	s.statsMu.Unlock()

	if hb, ok := frame.Message.(*mavlink.Heartbeat); ok {
		s.noteHeartbeat(frame.Sender, *hb, frame.Timestamp())
	}

	s.publish(frame)
}

func (s *Session) noteHeartbeat(addr mavlink.Address, hb mavlink.Heartbeat, at time.Time) {
	s.sysMu.Lock()
	defer s.sysMu.Unlock()

	if _, seen := s.systems[addr]; !seen {
		s.log.With(logger.Fields{
			"sysid":  addr.SystemID,
			"compid": addr.ComponentID,
		}).Info("new system on link")
	}
	s.systems[addr] = System{Address: addr, Heartbeat: hb, LastSeen: at}

	if !hb.IsAutopilot() {
		return
	}
	select {
	case <-s.autopilotFound:
	default:
		s.autopilot = addr
		close(s.autopilotFound)
	}
}

func (s *Session) publish(frame *mavlink.Frame) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, c := range s.subs {
		select {
		case c <- frame:
		default:
			// Drop if subscriber is behind
		}
	}
}

// reconnect attempts to reconnect with exponential backoff.
// Returns false if the session closed or cannot redial.
func (s *Session) reconnect() bool {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	if s.opts.Dial == nil {
		return false
	}

	backoff := initialBackoff

	for {
		select {
		case <-s.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := s.opts.Dial()
		if err == nil {
			s.mu.Lock()
			if s.closed() {
				s.mu.Unlock()
				conn.Close()
				return false
			}
			s.conn = conn
			s.connInfo = connInfo
			s.mu.Unlock()

			s.log.With(logger.Fields{"conn": connInfo}).Info("reconnected")
			return true
		}

		s.log.WithError(err).Debugf("reconnect failed, retrying in %s", backoff)

		// Exponential backoff
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
