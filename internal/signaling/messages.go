package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType names an inbound (client -> server) message.
type MessageType string

const (
	MessageTypeAuth           MessageType = "auth"
	MessageTypeRegister       MessageType = "register"
	MessageTypeUnregister     MessageType = "unregister"
	MessageTypeCallUser       MessageType = "call-user"
	MessageTypeAnswerCall     MessageType = "answer-call"
	MessageTypeCallAccepted   MessageType = "call-accepted"
	MessageTypeCallDeclined   MessageType = "call-declined"
	MessageTypeICECandidate   MessageType = "ice-candidate"
	MessageTypeSendMessage    MessageType = "send-message"
	MessageTypeStartInCall    MessageType = "start-in-call"
	MessageTypeRemoveInCall   MessageType = "remove-in-call"
	MessageTypeInCall         MessageType = "in-call"
	MessageTypeCallEnd        MessageType = "call-end"
	MessageTypeDisconnectCall MessageType = "disconnect-call"
)

// EventType names an outbound (server -> client) event.
type EventType string

const (
	EventRegistered     EventType = "registered"
	EventLiveUsers      EventType = "live-users"
	EventCallUsers      EventType = "call-users"
	EventNewLiveUser    EventType = "new-live-user"
	EventIncomingCall   EventType = "incoming-call"
	EventCallAnswered   EventType = "call-answered"
	EventCallAccepted   EventType = "call-accepted"
	EventCallDeclined   EventType = "call-declined"
	EventICECandidate   EventType = "ice-candidate"
	EventNewMessage     EventType = "new-message"
	EventCallDisconnect EventType = "call-disconnect"
	EventUserNotFound   EventType = "user-not-found"
)

var (
	errMissingType  = errors.New("message missing type")
	errMissingField = errors.New("message missing required field")
)

// envelope is the wire framing for both directions:
//
//	{"type":"call-user","payload":{"from":"alice","to":"bob","offer":{...}}}
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is a decoded inbound message. Only the fields relevant to Type are
// populated; handshake values are kept as raw JSON.
type Message struct {
	Type MessageType
	Body MessageBody
}

// MessageBody is the union of all inbound payload fields.
type MessageBody struct {
	UserID string `json:"userId,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`

	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`

	Name     json.RawMessage `json:"name,omitempty"`
	Complain json.RawMessage `json:"complain,omitempty"`
	Block    json.RawMessage `json:"block,omitempty"`

	APIKey string `json:"apiKey,omitempty"`
	Token  string `json:"token,omitempty"`
}

// ParseMessage decodes one inbound frame. Unknown payload fields are
// tolerated; unknown message types are returned as-is and left to the hub.
func ParseMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, err
	}
	if env.Type == "" {
		return Message{}, errMissingType
	}

	msg := Message{Type: MessageType(env.Type)}
	if present(env.Payload) {
		if err := json.Unmarshal(env.Payload, &msg.Body); err != nil {
			return Message{}, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return msg, nil
}

// present reports whether a raw JSON value was supplied and is not null.
func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// requireFields checks the required-field table for m.Type. It does not look
// inside handshake payloads.
func (m Message) requireFields() error {
	b := m.Body
	ok := true
	switch m.Type {
	case MessageTypeRegister, MessageTypeStartInCall, MessageTypeRemoveInCall:
		ok = b.UserID != ""
	case MessageTypeCallUser, MessageTypeCallAccepted, MessageTypeCallDeclined:
		ok = b.From != "" && b.To != "" && present(b.Offer)
	case MessageTypeAnswerCall:
		ok = b.To != "" && present(b.Answer)
	case MessageTypeICECandidate:
		ok = b.To != "" && present(b.Candidate)
	case MessageTypeSendMessage:
		ok = b.From != "" && b.To != "" && present(b.Message)
	case MessageTypeInCall, MessageTypeCallEnd:
		ok = b.From != "" && b.To != ""
	case MessageTypeDisconnectCall:
		ok = b.From != "" && b.To != "" && present(b.Name) && present(b.Complain) && present(b.Block)
	}
	if !ok {
		return fmt.Errorf("%w for %q", errMissingField, m.Type)
	}
	return nil
}

// Outbound payloads.

type userPayload struct {
	UserID string `json:"userId"`
}

type liveUsersPayload struct {
	LiveUsers []string `json:"liveUsers"`
}

type callUsersPayload struct {
	CallUsers []string `json:"callUsers"`
}

type offerPayload struct {
	From  string          `json:"from"`
	Offer json.RawMessage `json:"offer"`
}

type answerPayload struct {
	Answer json.RawMessage `json:"answer"`
}

type candidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

type chatPayload struct {
	From    string          `json:"from"`
	Message json.RawMessage `json:"message"`
}

type callDisconnectPayload struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Name     json.RawMessage `json:"name"`
	Complain json.RawMessage `json:"complain"`
	Block    json.RawMessage `json:"block"`
}

type userNotFoundPayload struct {
	To string `json:"to"`
}

// Event is one outbound server -> client message.
type Event struct {
	Type    EventType
	Payload any
}

// Encode renders e in the wire envelope. HTML escaping is disabled so relayed
// values leave the server exactly as they arrived.
func (e Event) Encode() ([]byte, error) {
	payload, err := marshalVerbatim(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", e.Type, err)
	}
	return marshalVerbatim(envelope{Type: string(e.Type), Payload: payload})
}

func marshalVerbatim(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
