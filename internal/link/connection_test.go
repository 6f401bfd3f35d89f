// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/lumen/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSerialTarget(t *testing.T) {
	tests := []struct {
		target  string
		device  string
		baud    int
		wantErr bool
	}{
		{target: "/dev/ttyUSB0", device: "/dev/ttyUSB0", baud: DefaultSerialBaud},
		{target: "/dev/ttyUSB0:921600", device: "/dev/ttyUSB0", baud: 921600},
		{target: "COM3:115200", device: "COM3", baud: 115200},
		{target: "", wantErr: true},
		{target: "/dev/ttyUSB0:fast", wantErr: true},
		{target: "/dev/ttyUSB0:0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			device, baud, err := parseSerialTarget(tt.target)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.device, device)
			assert.Equal(t, tt.baud, baud)
		})
	}
	assert.Equal(t, 57600, DefaultSerialBaud)
}

func TestOpen_Rejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "unknown scheme", url: "ftp://example.com", want: "unsupported connection scheme"},
		{name: "no scheme", url: "/dev/ttyUSB0", want: "unsupported connection scheme"},
		{name: "serial without device", url: "serial://", want: "no device"},
		{name: "serial bad baud", url: "serial:///dev/ttyUSB0:fast", want: "invalid baud rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _, err := Open(tt.url, OpenOptions{})
			assert.Nil(t, conn)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestMQTTTopic(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{url: "mqtt://broker:1883", want: "lumen"},
		{url: "mqtt://broker:1883/", want: "lumen"},
		{url: "mqtt://broker:1883/rig", want: "rig"},
		{url: "mqtt://broker:1883/fleet/rig7/", want: "fleet/rig7"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.url)
		require.NoError(t, err)
		assert.Equal(t, tt.want, mqttTopic(u), tt.url)
	}
}

func TestMQTTConnection_Roles(t *testing.T) {
	ground := newMQTTConnection("rig", RoleGround)
	assert.Equal(t, "rig/tx", ground.txTopic)
	assert.Equal(t, "rig/rx", ground.rxTopic)

	vehicle := newMQTTConnection("rig", RoleVehicle)
	assert.Equal(t, "rig/rx", vehicle.txTopic)
	assert.Equal(t, "rig/tx", vehicle.rxTopic)
}

// fakeToken completes immediately unless it is set to time out
type fakeToken struct {
	err     error
	timeout bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

// fakeSubscriber stands in for the paho client's Subscribe
type fakeSubscriber struct {
	mu      sync.Mutex
	topics  []string
	handler mqtt.MessageHandler
	token   *fakeToken
}

func (s *fakeSubscriber) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	s.handler = callback
	if s.token != nil {
		return s.token
	}
	return &fakeToken{}
}

func (s *fakeSubscriber) deliver(topic string, payload []byte) {
	s.mu.Lock()
	handler := s.handler
	s.mu.Unlock()
	handler(nil, &fakeMessage{topic: topic, payload: payload})
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return mqttQoS }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestMQTTConnection_ResubscribesOnReconnect(t *testing.T) {
	m := newMQTTConnection("rig", RoleGround)
	sub := &fakeSubscriber{}

	m.resubscribe(sub)
	require.NoError(t, <-m.subscribed)

	// The broker went away and paho reconnected with a clean session
	m.resubscribe(sub)
	assert.Equal(t, []string{"rig/rx", "rig/rx"}, sub.topics)

	sub.deliver("rig/rx", []byte{1, 2, 3})

	buf := make([]byte, 2)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, buf[:n])

	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, buf[:n])
}

func TestMQTTConnection_ResubscribeFailureCloses(t *testing.T) {
	m := newMQTTConnection("rig", RoleVehicle)
	sub := &fakeSubscriber{}

	m.resubscribe(sub)
	require.NoError(t, <-m.subscribed)

	sub.token = &fakeToken{err: errors.New("not authorized")}
	m.resubscribe(sub)

	_, err := m.Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestMQTTConnection_LogsReconnects(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewWithOutput(&buf, "info")
	require.NoError(t, err)

	m := newMQTTConnection("rig", RoleGround)
	m.log = log
	sub := &fakeSubscriber{}

	m.resubscribe(sub)
	require.NoError(t, <-m.subscribed)

	m.connectLostHandler(nil, errors.New("EOF"))
	m.resubscribe(sub)

	out := buf.String()
	assert.Contains(t, out, "module=mqtt")
	assert.Contains(t, out, "broker connection lost: EOF")
	assert.Contains(t, out, "resubscribed after reconnect")
}

func TestMQTTConnection_FirstSubscribeErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		m := newMQTTConnection("rig", RoleGround)
		m.resubscribe(&fakeSubscriber{token: &fakeToken{timeout: true}})

		err := <-m.subscribed
		require.Error(t, err)
		assert.Equal(t, "MQTT subscribe to rig/rx timed out", err.Error())
	})

	t.Run("refused", func(t *testing.T) {
		cause := errors.New("not authorized")
		m := newMQTTConnection("rig", RoleGround)
		m.resubscribe(&fakeSubscriber{token: &fakeToken{err: cause}})

		err := <-m.subscribed
		assert.ErrorIs(t, err, cause)
		assert.NotContains(t, err.Error(), "<nil>")
	})
}

func TestUDPListener_RepliesToLastPeer(t *testing.T) {
	conn, info, err := Open("udp://127.0.0.1:0", OpenOptions{})
	require.NoError(t, err)
	defer conn.Close()
	assert.Contains(t, info, "UDP listen")

	_, err = conn.Write([]byte("early"))
	assert.ErrorIs(t, err, ErrNoPeer)

	listener := conn.(*UDPConnection)
	addr := listener.conn.LocalAddr().(*net.UDPAddr)
	require.NoError(t, listener.conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 64)
	for _, name := range []string{"first", "second"} {
		client, err := net.DialUDP("udp", nil, addr)
		require.NoError(t, err)
		defer client.Close()

		_, err = client.Write([]byte(name))
		require.NoError(t, err)

		n, err := conn.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, name, string(buf[:n]))

		_, err = conn.Write([]byte("reply to " + name))
		require.NoError(t, err)

		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, err = client.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, "reply to "+name, string(buf[:n]))
	}
}

func TestOpen_TCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 64)
		n, _ := c.Read(buf)
		c.Write(buf[:n])
	}()

	conn, info, err := Open("tcp://"+ln.Addr().String(), OpenOptions{})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "TCP: "+ln.Addr().String(), info)

	_, err = conn.Write([]byte{0xFD, 0x01})
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFD, 0x01}, buf[:n])
}

func TestWebSocketConnection(t *testing.T) {
	type auth struct {
		user, pass string
		ok         bool
	}
	authCh := make(chan auth, 1)
	received := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		authCh <- auth{user, pass, ok}

		upgrader := websocket.Upgrader{}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		c.WriteMessage(websocket.TextMessage, []byte("status text"))
		c.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})

		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				received <- data
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, info, err := Open(wsURL, OpenOptions{Username: "pilot", Password: "secret"})
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, "WebSocket: "+wsURL, info)

	a := <-authCh
	assert.True(t, a.ok)
	assert.Equal(t, "pilot", a.user)
	assert.Equal(t, "secret", a.pass)

	// The text message is skipped; the binary one is read in pieces
	buf := make([]byte, 2)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, buf[:n])

	n, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, buf[:n])

	_, err = conn.Write([]byte{0xFD, 0x00})
	require.NoError(t, err)
	select {
	case data := <-received:
		assert.Equal(t, []byte{0xFD, 0x00}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the frame")
	}
}
