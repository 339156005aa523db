// Package protocol defines the WAMP v1 message types and the JSON array
// encoding used on the wire.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned when an inbound payload is not a valid
// WAMP message.
var ErrMalformedMessage = errors.New("malformed WAMP message")

// MessageType is the integer tag in the first position of every message.
type MessageType int

const (
	TypeWelcome     MessageType = 0
	TypePrefix      MessageType = 1
	TypeCall        MessageType = 2
	TypeCallResult  MessageType = 3
	TypeCallError   MessageType = 4
	TypeSubscribe   MessageType = 5
	TypeUnsubscribe MessageType = 6
	TypePublish     MessageType = 7
	TypeEvent       MessageType = 8
)

// Valid reports whether t is one of the defined message types.
func (t MessageType) Valid() bool {
	return t >= TypeWelcome && t <= TypeEvent
}

func (t MessageType) String() string {
	switch t {
	case TypeWelcome:
		return "WELCOME"
	case TypePrefix:
		return "PREFIX"
	case TypeCall:
		return "CALL"
	case TypeCallResult:
		return "CALLRESULT"
	case TypeCallError:
		return "CALLERROR"
	case TypeSubscribe:
		return "SUBSCRIBE"
	case TypeUnsubscribe:
		return "UNSUBSCRIBE"
	case TypePublish:
		return "PUBLISH"
	case TypeEvent:
		return "EVENT"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Message is an outbound message: a type tag followed by its fields.
// Build one with the constructors below; it is serialised immediately.
type Message struct {
	Type   MessageType
	Fields []any
}

// MarshalJSON renders the message as a JSON array.
func (m Message) MarshalJSON() ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("cannot encode %s", m.Type)
	}
	arr := make([]any, 0, len(m.Fields)+1)
	arr = append(arr, int(m.Type))
	arr = append(arr, m.Fields...)
	return json.Marshal(arr)
}

// Encode serialises m for a text frame.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	return data, nil
}

func Prefix(prefix, uri string) Message {
	return Message{Type: TypePrefix, Fields: []any{prefix, uri}}
}

// Call builds [CALL, callID, procURI, args...]. Arguments are passed through
// as-is and may be any JSON-serialisable value.
func Call(callID, procURI string, args ...any) Message {
	fields := make([]any, 0, len(args)+2)
	fields = append(fields, callID, procURI)
	fields = append(fields, args...)
	return Message{Type: TypeCall, Fields: fields}
}

func Subscribe(topicURI string) Message {
	return Message{Type: TypeSubscribe, Fields: []any{topicURI}}
}

func Unsubscribe(topicURI string) Message {
	return Message{Type: TypeUnsubscribe, Fields: []any{topicURI}}
}

// Publish builds [PUBLISH, topicURI, payload, exclude, eligible]. Nil lists
// are sent as empty arrays.
func Publish(topicURI string, payload any, exclude, eligible []string) Message {
	if exclude == nil {
		exclude = []string{}
	}
	if eligible == nil {
		eligible = []string{}
	}
	return Message{Type: TypePublish, Fields: []any{topicURI, payload, exclude, eligible}}
}

func Event(topicURI string, payload any) Message {
	return Message{Type: TypeEvent, Fields: []any{topicURI, payload}}
}
