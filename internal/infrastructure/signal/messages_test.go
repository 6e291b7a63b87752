package signal

import (
	"testing"

	"streamwatch/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Inbound
	}{
		{name: "text message", data: `{"type":"MESSAGE","payload":"hi"}`, want: TextMessage{Text: "hi"}},
		{name: "object message", data: `{"type":"MESSAGE","payload":{"a":1}}`, want: TextMessage{Text: `{"a":1}`}},
		{name: "ask streams", data: `{"type":"ASK_STREAMS"}`, want: AskStreams{}},
		{name: "ask stream", data: `{"type":"ASK_STREAM","payload":"alice"}`, want: AskStream{Login: "alice"}},
		{name: "add stream string", data: `{"type":"ADD_STREAM","payload":"Bob"}`, want: AddStream{Login: "Bob"}},
		{name: "add stream object", data: `{"type":"ADD_STREAM","payload":{"login":"bob"}}`, want: AddStream{Login: "bob"}},
		{name: "unknown", data: `{"type":"PING"}`, want: UnknownMessage{Type: "PING"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeInbound_Malformed(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"payload":"missing type"}`,
		`{"type":"ADD_STREAM"}`,
		`{"type":"ADD_STREAM","payload":""}`,
		`{"type":"ADD_STREAM","payload":12}`,
		`{"type":"ASK_STREAM","payload":{"login":""}}`,
	} {
		_, err := DecodeInbound([]byte(data))
		var protoErr *domain.ProtocolError
		assert.ErrorAs(t, err, &protoErr, data)
	}
}

func TestTransitionMessage(t *testing.T) {
	online := transitionMessage(domain.TransitionEvent{Kind: domain.WentOnline})
	assert.Equal(t, TypeNewStreamOnline, online.Type)

	offline := transitionMessage(domain.TransitionEvent{Kind: domain.WentOffline, Synthetic: true})
	assert.Equal(t, TypeStreamOffline, offline.Type)
	assert.True(t, offline.Payload.(TransitionPayload).Synthetic)
}
