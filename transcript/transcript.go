// Package transcript translates raw AssemblyAI streaming messages into the
// stable event shape the relay sends to clients.
package transcript

import (
	"encoding/json"
	"fmt"
)

// Kind tags a normalized upstream event.
type Kind int

const (
	// Ignored marks events the relay takes no action on.
	Ignored Kind = iota
	// Partial is an interim transcript for a turn still in progress.
	Partial
	// Final is the formatted transcript for a completed turn.
	Final
	// Terminated reports that the upstream service ended the session.
	Terminated
)

func (k Kind) String() string {
	switch k {
	case Partial:
		return "PartialTranscript"
	case Final:
		return "FinalTranscript"
	case Terminated:
		return "SessionTerminated"
	default:
		return "Ignored"
	}
}

// Event is a normalized upstream event.
type Event struct {
	Kind Kind
	// Text is the turn transcript; always "" rather than absent.
	Text string
	// AudioDurationSeconds is set only on Terminated events.
	AudioDurationSeconds float64
}

// ClientMessage is the JSON shape sent to the relay's client for transcript
// events.
type ClientMessage struct {
	Type        string `json:"type"`
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
}

// ClientMessage converts a Partial or Final event into its outward message.
// The boolean is false for events that produce no client message.
func (e Event) ClientMessage() (ClientMessage, bool) {
	switch e.Kind {
	case Partial, Final:
		return ClientMessage{
			Type:        "transcript",
			MessageType: e.Kind.String(),
			Text:        e.Text,
		}, true
	default:
		return ClientMessage{}, false
	}
}

// upstreamMessage is the wire shape of AssemblyAI v3 streaming messages. Only
// the fields the relay cares about are decoded; everything else is dropped.
type upstreamMessage struct {
	Type                 string  `json:"type"`
	Transcript           string  `json:"transcript"`
	TurnIsFormatted      bool    `json:"turn_is_formatted"`
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`
}

// Normalize maps one raw upstream payload to an Event. It is pure and
// deterministic: a Turn becomes Partial or Final depending on whether the
// turn is formatted, a Termination becomes Terminated, and any other message
// type becomes Ignored. Undecodable payloads return an error; callers log
// and drop them, they are never fatal to a session.
func Normalize(raw []byte) (Event, error) {
	var msg upstreamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Event{}, fmt.Errorf("decoding upstream message: %w", err)
	}

	switch msg.Type {
	case "Turn":
		kind := Partial
		if msg.TurnIsFormatted {
			kind = Final
		}
		return Event{Kind: kind, Text: msg.Transcript}, nil
	case "Termination":
		return Event{Kind: Terminated, AudioDurationSeconds: msg.AudioDurationSeconds}, nil
	default:
		return Event{Kind: Ignored}, nil
	}
}
