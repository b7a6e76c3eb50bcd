// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/backplate/pkg/comms"
)

const (
	// serialReadTimeout bounds a Read so it behaves as a poll
	serialReadTimeout = 5 * time.Millisecond
	// serialBreakDuration matches a zero-duration tcsendbreak
	serialBreakDuration = 250 * time.Millisecond
)

var (
	// ErrNotOpen is returned by I/O on a transport that has not been opened
	ErrNotOpen = errors.New("transport not open")
	// ErrConnectionClosed is returned when reading from a closed WebSocket connection
	ErrConnectionClosed = errors.New("websocket connection closed")
)

var (
	_ comms.Transport = (*SerialTransport)(nil)
	_ comms.Transport = (*WebSocketTransport)(nil)
)

// SerialTransport drives a local serial port
type SerialTransport struct {
	portName string
	port     serial.Port
}

// NewSerialTransport creates a transport for portName; it is opened by Open
func NewSerialTransport(portName string) *SerialTransport {
	return &SerialTransport{portName: portName}
}

// Open opens the port at baud, 8N1
func (s *SerialTransport) Open(baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(s.portName, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.portName, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", s.portName, err)
	}

	s.port = port
	return nil
}

// Close closes the port
func (s *SerialTransport) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Read returns whatever arrived within the read timeout, possibly nothing
func (s *SerialTransport) Read(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrNotOpen
	}
	return s.port.Read(p)
}

// Write writes p to the port
func (s *SerialTransport) Write(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrNotOpen
	}
	return s.port.Write(p)
}

// SendBreak holds the line in the break condition
func (s *SerialTransport) SendBreak() error {
	if s.port == nil {
		return ErrNotOpen
	}
	return s.port.Break(serialBreakDuration)
}

// Flush discards unread input and unsent output
func (s *SerialTransport) Flush() error {
	if s.port == nil {
		return ErrNotOpen
	}
	if err := s.port.ResetInputBuffer(); err != nil {
		return err
	}
	return s.port.ResetOutputBuffer()
}

// WebSocketTransport reaches the backplate through a remote serial bridge.
// Binary messages carry raw link bytes in both directions.
type WebSocketTransport struct {
	url           string
	username      string
	password      string
	skipSSLVerify bool

	conn *websocket.Conn

	mu      sync.Mutex
	buf     []byte
	readErr error
}

// NewWebSocketTransport creates a transport for wsURL; it is dialled by Open
func NewWebSocketTransport(wsURL, username, password string, skipSSLVerify bool) *WebSocketTransport {
	return &WebSocketTransport{
		url:           wsURL,
		username:      username,
		password:      password,
		skipSSLVerify: skipSSLVerify,
	}
}

// Open dials the bridge. The baud rate is set on the bridge side and is ignored.
func (w *WebSocketTransport) Open(baud int) error {
	conn, err := dialWebSocket(w.url, w.username, w.password, w.skipSSLVerify)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.buf = nil
	w.readErr = nil
	w.mu.Unlock()

	go w.readLoop(conn)
	return nil
}

// readLoop buffers binary messages until the connection fails
func (w *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			if w.conn == conn {
				w.readErr = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			}
			w.mu.Unlock()
			return
		}

		// Only binary messages carry link bytes
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.mu.Lock()
		w.buf = append(w.buf, data...)
		w.mu.Unlock()
	}
}

// Close closes the connection
func (w *WebSocketTransport) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Read returns buffered bytes without waiting
func (w *WebSocketTransport) Read(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return 0, ErrNotOpen
	}
	if len(w.buf) == 0 {
		return 0, w.readErr
	}

	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

// Write sends p as one binary message
func (w *WebSocketTransport) Write(p []byte) (int, error) {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()

	if conn == nil {
		return 0, ErrNotOpen
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SendBreak is not supported by the bridge protocol and is skipped
func (w *WebSocketTransport) SendBreak() error {
	glog.V(1).Info("websocket: line break not supported by bridge, skipped")
	return nil
}

// Flush discards buffered input
func (w *WebSocketTransport) Flush() error {
	w.mu.Lock()
	w.buf = nil
	w.mu.Unlock()
	return nil
}

// dialWebSocket opens a WebSocket connection with HTTP Basic auth
func dialWebSocket(wsURL, username, password string, skipSSLVerify bool) (*websocket.Conn, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
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
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return conn, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("BACKPLATE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// NewTransport builds the transport selected by the connection flags.
// The transport is returned unopened along with a description.
func NewTransport() (comms.Transport, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		return NewWebSocketTransport(wsURL, wsUsername, password, wsNoSSLVerify),
			fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		return NewSerialTransport(portName),
			fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", fmt.Errorf("either --port or --url must be specified")
}

// OpenTransport builds and opens the selected transport for passive reading
func OpenTransport() (comms.Transport, string, error) {
	t, info, err := NewTransport()
	if err != nil {
		return nil, "", err
	}
	if err := t.Open(baudRate); err != nil {
		return nil, "", err
	}
	return t, info, nil
}
