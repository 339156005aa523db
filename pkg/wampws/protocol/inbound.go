package protocol

import (
	"encoding/json"
	"fmt"
)

// Inbound is a decoded message received from the server. Fields holds the
// raw JSON of every element after the type tag.
type Inbound struct {
	Type   MessageType
	Fields []json.RawMessage
}

// Welcome is the server's first message: [WELCOME, sessionId, protocolVersion, serverIdent].
type Welcome struct {
	SessionID       string
	ProtocolVersion int
	ServerIdent     string
}

// CallResult is [CALLRESULT, callID, result].
type CallResult struct {
	CallID string
	Result any
}

// CallError is [CALLERROR, callID, errorURI, errorDesc, errorDetails?].
type CallError struct {
	CallID      string
	ErrorURI    string
	Description string
	Details     any
}

func (e CallError) Error() string {
	return fmt.Sprintf("call %s failed: %s: %s", e.CallID, e.ErrorURI, e.Description)
}

// EventMessage is [EVENT, topicURI, event].
type EventMessage struct {
	TopicURI string
	Payload  any
}

// Parse decodes a JSON array payload into an Inbound message.
func Parse(data []byte) (*Inbound, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformedMessage)
	}

	var tag int
	if err := json.Unmarshal(raw[0], &tag); err != nil {
		return nil, fmt.Errorf("%w: type tag %s is not an integer", ErrMalformedMessage, raw[0])
	}

	t := MessageType(tag)
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown type %d", ErrMalformedMessage, tag)
	}

	return &Inbound{Type: t, Fields: raw[1:]}, nil
}

// Welcome decodes a WELCOME message. Only the session id is required.
func (m *Inbound) Welcome() (Welcome, error) {
	var w Welcome
	if err := m.expect(TypeWelcome, 1); err != nil {
		return w, err
	}
	if err := m.field(0, &w.SessionID, "session id"); err != nil {
		return w, err
	}
	if len(m.Fields) > 1 {
		if err := m.field(1, &w.ProtocolVersion, "protocol version"); err != nil {
			return w, err
		}
	}
	if len(m.Fields) > 2 {
		if err := m.field(2, &w.ServerIdent, "server ident"); err != nil {
			return w, err
		}
	}
	return w, nil
}

func (m *Inbound) CallResult() (CallResult, error) {
	var r CallResult
	if err := m.expect(TypeCallResult, 2); err != nil {
		return r, err
	}
	if err := m.field(0, &r.CallID, "call id"); err != nil {
		return r, err
	}
	if err := m.field(1, &r.Result, "result"); err != nil {
		return r, err
	}
	return r, nil
}

func (m *Inbound) CallError() (CallError, error) {
	var e CallError
	if err := m.expect(TypeCallError, 3); err != nil {
		return e, err
	}
	if err := m.field(0, &e.CallID, "call id"); err != nil {
		return e, err
	}
	if err := m.field(1, &e.ErrorURI, "error uri"); err != nil {
		return e, err
	}
	if err := m.field(2, &e.Description, "error description"); err != nil {
		return e, err
	}
	if len(m.Fields) > 3 {
		if err := m.field(3, &e.Details, "error details"); err != nil {
			return e, err
		}
	}
	return e, nil
}

func (m *Inbound) Event() (EventMessage, error) {
	var ev EventMessage
	if err := m.expect(TypeEvent, 2); err != nil {
		return ev, err
	}
	if err := m.field(0, &ev.TopicURI, "topic uri"); err != nil {
		return ev, err
	}
	if err := m.field(1, &ev.Payload, "event payload"); err != nil {
		return ev, err
	}
	return ev, nil
}

func (m *Inbound) expect(t MessageType, minFields int) error {
	if m.Type != t {
		return fmt.Errorf("%w: expected %s, got %s", ErrMalformedMessage, t, m.Type)
	}
	if len(m.Fields) < minFields {
		return fmt.Errorf("%w: %s needs %d fields, got %d", ErrMalformedMessage, t, minFields, len(m.Fields))
	}
	return nil
}

func (m *Inbound) field(i int, dst any, name string) error {
	if err := json.Unmarshal(m.Fields[i], dst); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedMessage, m.Type, name, err)
	}
	return nil
}
