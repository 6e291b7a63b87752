package signal

import (
	"bytes"
	"encoding/json"
	"fmt"

	"streamwatch/internal/core/domain"
)

type MessageType string

const (
	TypeMessage         MessageType = "MESSAGE"
	TypeStreams         MessageType = "STREAMS"
	TypeNewStreamOnline MessageType = "NEW_STREAM_ONLINE"
	TypeStreamOffline   MessageType = "STREAM_OFFLINE"
	TypeAskStreams      MessageType = "ASK_STREAMS"
	TypeAskStream       MessageType = "ASK_STREAM"
	TypeAddStream       MessageType = "ADD_STREAM"
)

// Envelope is the wire form of every message in both directions.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutboundMessage is an envelope whose payload is still a Go value.
type OutboundMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// StreamsPayload is sent once on connect.
type StreamsPayload struct {
	Online  []domain.LiveStatus  `json:"online"`
	Offline []domain.ProfileInfo `json:"offline"`
}

// OnlinePayload answers ASK_STREAMS and ASK_STREAM.
type OnlinePayload struct {
	Online []domain.LiveStatus `json:"online"`
}

type TransitionPayload struct {
	Stream    domain.LiveStatus   `json:"stream"`
	Profile   *domain.ProfileInfo `json:"profile,omitempty"`
	Synthetic bool                `json:"synthetic,omitempty"`
}

// Inbound is the closed set of messages a client may send.
type Inbound interface {
	inbound()
}

type TextMessage struct {
	Text string
}

type AskStreams struct{}

type AskStream struct {
	Login string
}

type AddStream struct {
	Login string
}

// UnknownMessage carries a well-formed envelope of a type the hub does not
// handle.
type UnknownMessage struct {
	Type MessageType
}

func (TextMessage) inbound()    {}
func (AskStreams) inbound()     {}
func (AskStream) inbound()      {}
func (AddStream) inbound()      {}
func (UnknownMessage) inbound() {}

// DecodeInbound parses one client frame. Any decoding failure is reported as
// a *domain.ProtocolError.
func DecodeInbound(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &domain.ProtocolError{Err: err}
	}
	if env.Type == "" {
		return nil, &domain.ProtocolError{Err: fmt.Errorf("message type is required")}
	}

	switch env.Type {
	case TypeMessage:
		text, err := decodeText(env.Payload)
		if err != nil {
			return nil, &domain.ProtocolError{Err: err}
		}
		return TextMessage{Text: text}, nil

	case TypeAskStreams:
		return AskStreams{}, nil

	case TypeAskStream:
		login, err := decodeLogin(env.Payload)
		if err != nil {
			return nil, &domain.ProtocolError{Err: err}
		}
		return AskStream{Login: login}, nil

	case TypeAddStream:
		login, err := decodeLogin(env.Payload)
		if err != nil {
			return nil, &domain.ProtocolError{Err: err}
		}
		return AddStream{Login: login}, nil

	default:
		return UnknownMessage{Type: env.Type}, nil
	}
}

// decodeText accepts any JSON payload and renders non-strings verbatim.
func decodeText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("invalid MESSAGE payload")
	}
	return string(raw), nil
}

// decodeLogin accepts either a bare string or an object with a login field.
func decodeLogin(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("channel login is required")
	}

	var login string
	if raw[0] == '{' {
		var obj struct {
			Login string `json:"login"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("invalid channel payload: %w", err)
		}
		login = obj.Login
	} else if err := json.Unmarshal(raw, &login); err != nil {
		return "", fmt.Errorf("channel payload must be a string: %w", err)
	}

	if login == "" {
		return "", fmt.Errorf("channel login is required")
	}
	return login, nil
}

func initialStreamsMessage(snap *domain.Snapshot) OutboundMessage {
	return OutboundMessage{
		Type:    TypeStreams,
		Payload: StreamsPayload{Online: snap.OnlineStreams(), Offline: snap.OfflineList()},
	}
}

func onlineStreamsMessage(online []domain.LiveStatus) OutboundMessage {
	return OutboundMessage{Type: TypeStreams, Payload: OnlinePayload{Online: online}}
}

func textMessage(text string) OutboundMessage {
	return OutboundMessage{Type: TypeMessage, Payload: text}
}

func transitionMessage(event domain.TransitionEvent) OutboundMessage {
	msgType := TypeNewStreamOnline
	if event.Kind == domain.WentOffline {
		msgType = TypeStreamOffline
	}
	return OutboundMessage{
		Type: msgType,
		Payload: TransitionPayload{
			Stream:    event.Status,
			Profile:   event.Profile,
			Synthetic: event.Synthetic,
		},
	}
}
