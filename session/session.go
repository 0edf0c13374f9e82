// Package session pairs one client WebSocket connection with one upstream
// transcription link and relays traffic between them until either side goes
// away.
package session

import (
	"encoding/json"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/callscribe/callscribe/metrics"
	"github.com/callscribe/callscribe/stt"
	"github.com/callscribe/callscribe/transcript"
)

// State is the relay session lifecycle state.
type State int

const (
	// StateConnecting: client attached, upstream link still opening.
	StateConnecting State = iota
	// StateActive: upstream open, bidirectional relay running.
	StateActive
	// StateClosing: shutdown initiated by either side.
	StateClosing
	// StateClosed: both transports closed. Terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// ClientConn is the inbound WebSocket connection, satisfied by
// *websocket.Conn.
type ClientConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// UpstreamLink is the session's outbound transcription link, satisfied by
// *stt.Link.
type UpstreamLink interface {
	SendAudio(frame []byte) bool
	RequestTermination()
	Close()
}

// LinkOpener opens the upstream link for a new session. The session passes
// itself as the link's handler.
type LinkOpener func(h stt.Handler) UpstreamLink

// Session is one relay session. It owns its upstream link exclusively: the
// link is created when the session starts and never replaced. A dropped
// upstream link ends the session; the client reconnects to start a new one.
//
// State mutations happen under one mutex, since the client read loop and the
// link's callback goroutine run in parallel.
type Session struct {
	id     string
	logger *log.Logger
	m      *metrics.Metrics

	client ClientConn
	link   UpstreamLink

	mu    sync.Mutex
	state State

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a session for an accepted client connection and starts opening
// its upstream link. Call Run to drive the relay.
func New(client ClientConn, open LinkOpener, logger *log.Logger, m *metrics.Metrics) *Session {
	s := &Session{
		id:     uuid.NewString(),
		client: client,
		m:      m,
		state:  StateConnecting,
		done:   make(chan struct{}),
	}
	s.logger = logger.With("session_id", s.id)
	s.link = open(s)
	return s
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run relays until both transports are closed. It blocks for the lifetime of
// the client connection and must be called from the connection's handler
// goroutine.
func (s *Session) Run() {
	s.m.SessionsOpened.Inc()
	s.m.ActiveSessions.Inc()
	s.logger.Info("session started")

	s.readClient()

	// The client side is done; the session is over once the upstream link
	// reports closed too.
	<-s.done

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.m.ActiveSessions.Dec()
	s.m.SessionsClosed.Inc()
	s.logger.Info("session closed")
}

// readClient forwards binary client frames upstream until the connection
// drops. Non-binary frames are ignored; frames arriving while the link is
// not open are dropped by SendAudio, never buffered.
func (s *Session) readClient() {
	for {
		mt, msg, err := s.client.ReadMessage()
		if err != nil {
			s.clientGone(err)
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if s.link.SendAudio(msg) {
			s.m.FramesForwarded.Inc()
		} else {
			s.m.FramesDropped.Inc()
		}
	}
}

// clientGone handles the client connection dropping, gracefully or not.
func (s *Session) clientGone(err error) {
	s.mu.Lock()
	prev := s.state
	if prev == StateConnecting || prev == StateActive {
		s.state = StateClosing
	}
	s.mu.Unlock()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("client disconnected", "err", err)
	} else {
		s.logger.Warn("client read ended", "err", err)
	}

	switch prev {
	case StateActive:
		// Graceful path: ask the upstream to flush final results before
		// the transport closes.
		s.link.RequestTermination()
	case StateConnecting:
		s.link.Close()
	default:
		// The upstream side already drove shutdown.
	}
}

// OnOpen implements stt.Handler.
func (s *Session) OnOpen() {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateActive
	}
	s.mu.Unlock()
	s.logger.Debug("upstream link open")
}

// OnEvent implements stt.Handler. It normalizes one upstream payload and
// forwards transcript events to the client. Malformed payloads are logged
// and dropped; they never end the session.
func (s *Session) OnEvent(raw []byte) {
	ev, err := transcript.Normalize(raw)
	if err != nil {
		s.m.MalformedPayloads.Inc()
		s.logger.Warn("dropping malformed upstream payload", "err", err)
		return
	}

	switch ev.Kind {
	case transcript.Partial, transcript.Final:
		msg, _ := ev.ClientMessage()
		data, _ := json.Marshal(msg)
		if err := s.client.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("client write failed", "err", err)
			return
		}
		s.m.TranscriptsDelivered.WithLabelValues(msg.MessageType).Inc()
	case transcript.Terminated:
		s.logger.Info("upstream session terminated",
			"audio_duration_seconds", ev.AudioDurationSeconds)
	case transcript.Ignored:
	}
}

// OnError implements stt.Handler. Upstream errors are fatal to the session,
// not the process; the close that follows drives the actual teardown.
func (s *Session) OnError(err error) {
	s.m.UpstreamErrors.Inc()
	s.logger.Error("upstream link error", "err", err)
}

// OnClose implements stt.Handler. The link guarantees exactly one OnClose
// per session, which makes this the single authoritative teardown trigger
// for the upstream side.
func (s *Session) OnClose() {
	s.mu.Lock()
	prev := s.state
	if prev == StateConnecting || prev == StateActive {
		s.state = StateClosing
	}
	s.mu.Unlock()

	if prev == StateConnecting || prev == StateActive {
		// Upstream went away first. Nothing further can be relayed, so
		// drop the client connection; no termination handshake on this
		// path.
		s.client.Close()
	}
	s.doneOnce.Do(func() { close(s.done) })
}
