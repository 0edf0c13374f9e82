// Package stt maintains the outbound streaming session to the AssemblyAI
// real-time transcription service.
package stt

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Handler receives link lifecycle and message callbacks. All callbacks for
// one link are invoked from a single goroutine, so implementations never see
// two callbacks running at once. OnClose fires exactly once per link, on
// every exit path, and is the place to trigger teardown from.
type Handler interface {
	OnOpen()
	OnEvent(raw []byte)
	OnError(err error)
	OnClose()
}

// Config carries the acoustic parameters sent as query parameters on the
// upstream connection request. Fixed at construction, never changed after.
type Config struct {
	BaseURL string
	APIKey  string

	SampleRate         int
	FormatTurns        bool
	SilenceThresholdMs int
	WordLimit          int
}

// DefaultConfig returns the relay's standard acoustic parameters: 16 kHz
// audio, formatted turns, a 1500 ms turn silence threshold and at most 50
// words per turn.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:            baseURL,
		APIKey:             apiKey,
		SampleRate:         16000,
		FormatTurns:        true,
		SilenceThresholdMs: 1500,
		WordLimit:          50,
	}
}

type linkState int

const (
	stateConnecting linkState = iota
	stateOpen
	stateClosed
)

var terminateMessage = []byte(`{"type":"Terminate"}`)

// Link is one outbound WebSocket session to the transcription service. A
// Link is owned by exactly one relay session and is not reusable: once
// closed, the owner opens a new Link for the next session.
type Link struct {
	cfg     Config
	handler Handler
	logger  *log.Logger

	mu    sync.Mutex
	state linkState
	local bool // closure initiated on our side
	conn  *websocket.Conn

	closeOnce sync.Once
}

// Open starts connecting to the transcription service and returns
// immediately. The outcome is reported through the handler: OnOpen when the
// connection is established, OnError plus OnClose when the dial fails.
func Open(cfg Config, h Handler, logger *log.Logger) *Link {
	l := &Link{
		cfg:     cfg,
		handler: h,
		logger:  logger,
		state:   stateConnecting,
	}
	go l.dial()
	return l
}

// SendAudio forwards one binary audio frame upstream. Frames arriving before
// the link is open or after it has closed are dropped silently, never
// buffered; the return value reports whether the frame was written and
// exists for instrumentation only.
func (l *Link) SendAudio(frame []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateOpen {
		return false
	}
	if err := l.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		l.logger.Error("upstream audio write failed", "err", err)
		return false
	}
	return true
}

// RequestTermination sends the Terminate control message and closes the
// transport, letting the remote side flush final results. No-op unless the
// link is open; error paths use Close instead, where the transport is
// already unusable.
func (l *Link) RequestTermination() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != stateOpen {
		return
	}
	l.state = stateClosed
	l.local = true
	if err := l.conn.WriteMessage(websocket.TextMessage, terminateMessage); err != nil {
		l.logger.Error("upstream terminate write failed", "err", err)
	}
	l.conn.Close()
}

// Close tears the link down without the Terminate handshake. Safe to call in
// any state, including while the dial is still in flight.
func (l *Link) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == stateClosed {
		return
	}
	l.state = stateClosed
	l.local = true
	if l.conn != nil {
		l.conn.Close()
	}
}

func (l *Link) dial() {
	u, err := url.Parse(l.cfg.BaseURL)
	if err != nil {
		l.dialFailed(fmt.Errorf("parsing upstream URL: %w", err))
		return
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(l.cfg.SampleRate))
	q.Set("format_turns", strconv.FormatBool(l.cfg.FormatTurns))
	q.Set("turn_detection_silence_threshold_ms", strconv.Itoa(l.cfg.SilenceThresholdMs))
	q.Set("word_limit", strconv.Itoa(l.cfg.WordLimit))
	u.RawQuery = q.Encode()

	header := http.Header{"Authorization": {l.cfg.APIKey}}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		l.dialFailed(fmt.Errorf("dialing transcription service: %w", err))
		return
	}

	l.mu.Lock()
	if l.state == stateClosed {
		// Closed by the owner while the dial was in flight.
		l.mu.Unlock()
		conn.Close()
		l.fireClose()
		return
	}
	l.conn = conn
	l.state = stateOpen
	l.mu.Unlock()

	l.handler.OnOpen()
	l.readLoop(conn)
}

func (l *Link) dialFailed(err error) {
	l.mu.Lock()
	local := l.local
	l.state = stateClosed
	l.mu.Unlock()
	if !local {
		l.logger.Error("upstream connect failed", "err", err)
		l.handler.OnError(err)
	}
	l.fireClose()
}

// readLoop delivers upstream messages one at a time until the transport
// closes, then fires OnClose. It runs on the dial goroutine, which keeps the
// handler callbacks serialized.
func (l *Link) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			local := l.local
			l.state = stateClosed
			l.mu.Unlock()

			if !local {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					l.logger.Debug("upstream closed", "err", err)
				} else {
					l.handler.OnError(err)
				}
			}
			conn.Close()
			l.fireClose()
			return
		}
		l.handler.OnEvent(msg)
	}
}

func (l *Link) fireClose() {
	l.closeOnce.Do(l.handler.OnClose)
}
