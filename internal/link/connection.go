// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/lumen/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Connection provides a common interface for reading/writing bytes over any
// supported link
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// DefaultSerialBaud is used when a serial URL carries no baud rate
const DefaultSerialBaud = 57600

var (
	// ErrConnectionClosed is returned when reading from a closed message-based connection
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNoPeer is returned when writing to a listening UDP socket that has not heard from anyone yet
	ErrNoPeer = errors.New("no remote peer yet")
)

// Role selects which side of a topic-based link this endpoint is
type Role int

// Role values
const (
	RoleGround Role = iota
	RoleVehicle
)

// OpenOptions carries credentials and link settings for Open
type OpenOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
	ClientID      string
	Role          Role
	// Logger, when set, reports MQTT connects and drops; at debug level
	// paho's own logging is routed to it too
	Logger logger.Logger
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// WebSocketConnection wraps a WebSocket connection for byte-level reading
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // Track if connection has failed/closed
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		// MAVLink travels in binary messages only
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// UDPConnection is a listening UDP socket that replies to the last peer it
// heard from
type UDPConnection struct {
	conn   *net.UDPConn
	mu     sync.Mutex
	remote *net.UDPAddr
}

func (u *UDPConnection) Read(p []byte) (int, error) {
	n, addr, err := u.conn.ReadFromUDP(p)
	if err != nil {
		return n, err
	}
	u.mu.Lock()
	u.remote = addr
	u.mu.Unlock()
	return n, nil
}

func (u *UDPConnection) Write(p []byte) (int, error) {
	u.mu.Lock()
	remote := u.remote
	u.mu.Unlock()
	if remote == nil {
		return 0, ErrNoPeer
	}
	return u.conn.WriteToUDP(p, remote)
}

func (u *UDPConnection) Close() error {
	return u.conn.Close()
}

// MQTTConnection carries frames as MQTT messages, one frame per message.
// The rx subscription is renewed on every (re)connect.
type MQTTConnection struct {
	client   mqtt.Client
	txTopic  string
	rxTopic  string
	incoming chan []byte
	done     chan struct{}
	once     sync.Once
	log      logger.Logger

	// First subscription result, read by OpenMQTTConnection
	subscribed chan error
	ready      atomic.Bool

	buf       []byte
	bufOffset int
}

// mqttSubscriber is the part of mqtt.Client used to (re)subscribe
type mqttSubscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

const (
	mqttQoS          = 0
	mqttTimeout      = 10 * time.Second
	mqttIncomingSize = 256
)

func (m *MQTTConnection) Read(p []byte) (int, error) {
	if m.bufOffset < len(m.buf) {
		n := copy(p, m.buf[m.bufOffset:])
		m.bufOffset += n
		return n, nil
	}

	select {
	case <-m.done:
		return 0, ErrConnectionClosed
	case data := <-m.incoming:
		m.buf = data
		n := copy(p, m.buf)
		m.bufOffset = n
		return n, nil
	}
}

func (m *MQTTConnection) Write(p []byte) (int, error) {
	token := m.client.Publish(m.txTopic, mqttQoS, false, append([]byte(nil), p...))
	if !token.WaitTimeout(mqttTimeout) {
		return 0, fmt.Errorf("MQTT publish to %s timed out", m.txTopic)
	}
	if err := token.Error(); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (m *MQTTConnection) Close() error {
	m.once.Do(func() {
		close(m.done)
		if m.client != nil {
			m.client.Unsubscribe(m.rxTopic)
			m.client.Disconnect(250)
		}
	})
	return nil
}

func (m *MQTTConnection) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	data := append([]byte(nil), msg.Payload()...)
	select {
	case m.incoming <- data:
	default:
		// Reader is behind; drop like a lossy radio would
	}
}

func (m *MQTTConnection) connectHandler(c mqtt.Client) {
	m.resubscribe(c)
}

func (m *MQTTConnection) connectLostHandler(_ mqtt.Client, err error) {
	if m.log != nil {
		m.log.With(logger.Fields{"module": "mqtt"}).Warnf("broker connection lost: %v", err)
	}
}

// resubscribe subscribes to the rx topic. The first result goes to
// OpenMQTTConnection; a failure after an automatic reconnect closes the
// connection so the session redials.
func (m *MQTTConnection) resubscribe(c mqttSubscriber) {
	err := m.subscribe(c)

	if !m.ready.Swap(true) {
		m.subscribed <- err
		return
	}
	if err != nil {
		if m.log != nil {
			m.log.With(logger.Fields{"module": "mqtt"}).Errorf("%v", err)
		}
		m.Close()
		return
	}
	if m.log != nil {
		m.log.With(logger.Fields{"module": "mqtt", "topic": m.rxTopic}).Info("resubscribed after reconnect")
	}
}

func (m *MQTTConnection) subscribe(c mqttSubscriber) error {
	token := c.Subscribe(m.rxTopic, mqttQoS, m.handleMessage)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("MQTT subscribe to %s timed out", m.rxTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT subscribe to %s failed: %w", m.rxTopic, err)
	}
	return nil
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// OpenUDPListener binds a UDP socket; replies go to the last peer heard
func OpenUDPListener(address string) (Connection, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("invalid UDP address %s: %w", address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return &UDPConnection{conn: conn}, nil
}

// OpenMQTTConnection connects to a broker and exchanges frames on
// <topic>/tx and <topic>/rx. The vehicle role swaps the two.
func OpenMQTTConnection(broker, topic string, opts OpenOptions) (Connection, error) {
	m := newMQTTConnection(topic, opts.Role)
	m.log = opts.Logger

	if m.log != nil && m.log.GetLevel() == "debug" {
		pahoLog := m.log.With(logger.Fields{"module": "paho"})
		mqtt.ERROR = pahoLog
		mqtt.CRITICAL = pahoLog
		mqtt.WARN = pahoLog
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetOnConnectHandler(m.connectHandler).
		SetConnectionLostHandler(m.connectLostHandler).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(5 * time.Second).
		SetConnectTimeout(mqttTimeout).
		SetKeepAlive(30 * time.Second)

	m.client = mqtt.NewClient(clientOpts)

	token := m.client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("MQTT connection to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connection failed: %w", err)
	}

	select {
	case err := <-m.subscribed:
		if err != nil {
			m.client.Disconnect(250)
			return nil, err
		}
	case <-time.After(2 * mqttTimeout):
		m.client.Disconnect(250)
		return nil, fmt.Errorf("MQTT subscribe to %s timed out", m.rxTopic)
	}

	if m.log != nil {
		m.log.With(logger.Fields{"module": "mqtt", "tx": m.txTopic, "rx": m.rxTopic}).Info("client connected to broker")
	}
	return m, nil
}

// newMQTTConnection sets up topics and buffers; the vehicle role swaps
// tx and rx
func newMQTTConnection(topic string, role Role) *MQTTConnection {
	tx, rx := topic+"/tx", topic+"/rx"
	if role == RoleVehicle {
		tx, rx = rx, tx
	}
	return &MQTTConnection{
		txTopic:    tx,
		rxTopic:    rx,
		incoming:   make(chan []byte, mqttIncomingSize),
		done:       make(chan struct{}),
		subscribed: make(chan error, 1),
	}
}

// mqttTopic returns the base topic of an mqtt:// URL
func mqttTopic(u *url.URL) string {
	topic := strings.Trim(u.Path, "/")
	if topic == "" {
		return "lumen"
	}
	return topic
}

// Open opens a connection from a URL:
//
//	serial:///dev/ttyUSB0[:baud]
//	udp://[host]:port      listen, reply to the last peer
//	udpout://host:port
//	tcp://host:port
//	ws://host/path, wss://host/path
//	mqtt://broker:port/topic
//
// It returns the connection and a short description for display.
func Open(rawURL string, opts OpenOptions) (Connection, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid connection URL %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "serial":
		device, baud, err := parseSerialTarget(u.Host + u.Path)
		if err != nil {
			return nil, "", err
		}
		conn, err := OpenSerialConnection(device, baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", device, baud), nil

	case "udp":
		conn, err := OpenUDPListener(u.Host)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("UDP listen: %s", u.Host), nil

	case "udpout", "tcp":
		network := "udp"
		if u.Scheme == "tcp" {
			network = "tcp"
		}
		conn, err := net.DialTimeout(network, u.Host, 10*time.Second)
		if err != nil {
			return nil, "", fmt.Errorf("failed to connect to %s: %w", u.Host, err)
		}
		return conn, fmt.Sprintf("%s: %s", strings.ToUpper(network), u.Host), nil

	case "ws", "wss":
		conn, err := OpenWebSocketConnection(rawURL, opts.Username, opts.Password, opts.SkipSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", rawURL), nil

	case "mqtt":
		topic := mqttTopic(u)
		conn, err := OpenMQTTConnection("tcp://"+u.Host, topic, opts)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("MQTT: %s topic %s", u.Host, topic), nil

	default:
		return nil, "", fmt.Errorf("unsupported connection scheme %q (use serial, udp, udpout, tcp, ws, wss or mqtt)", u.Scheme)
	}
}

// parseSerialTarget splits "/dev/ttyUSB0:921600" into device and baud rate
func parseSerialTarget(target string) (string, int, error) {
	if target == "" {
		return "", 0, fmt.Errorf("serial URL has no device")
	}
	device, baudStr, ok := cutLast(target, ":")
	if !ok {
		return target, DefaultSerialBaud, nil
	}
	baud, err := strconv.Atoi(baudStr)
	if err != nil || baud <= 0 {
		return "", 0, fmt.Errorf("invalid baud rate %q", baudStr)
	}
	return device, baud, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
