package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Key   string `json:"key,omitempty"`   // Used for: Store, Retrieve
	Value string `json:"value,omitempty"` // Used for: Store (request), Retrieve (response)

	// Response only fields
	Code kvservice.Code `json:"code,omitempty"` // Outcome of the request, CodeOK on success
	Err  string         `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
}

// Status returns the outcome carried by a response as error, nil on success
func (m *Message) Status() error {
	if m.Code == kvservice.CodeOK && m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := m.Code
	if code == kvservice.CodeOK {
		// an error without code was produced outside the service (e.g. a decoding error)
		code = kvservice.CodeUnavailable
	}
	return kvservice.NewStatusError(code, m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewStoreRequest creates a new Store request
func NewStoreRequest(key, value string) *Message {
	return &Message{
		MsgType: MsgTStore,
		Key:     key,
		Value:   value,
	}
}

// NewStoreResponse creates a new Store response
func NewStoreResponse(err error) *Message {
	msg := &Message{
		MsgType: MsgTStore,
	}
	msg.setStatus(err)
	return msg
}

// NewRetrieveRequest creates a new Retrieve request
func NewRetrieveRequest(key string) *Message {
	return &Message{
		MsgType: MsgTRetrieve,
		Key:     key,
	}
}

// NewRetrieveResponse creates a new Retrieve response
func NewRetrieveResponse(value string, err error) *Message {
	msg := &Message{
		MsgType: MsgTRetrieve,
		Value:   value,
	}
	msg.setStatus(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code kvservice.Code, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    code,
		Err:     err,
	}
}

// setStatus stores the code and the message of err in the response
func (m *Message) setStatus(err error) {
	if err == nil {
		return
	}
	m.Code = kvservice.CodeOf(err)
	var se *kvservice.StatusError
	if errors.As(err, &se) {
		m.Err = se.Msg
	} else {
		m.Err = err.Error()
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTStore:
		return "store"
	case MsgTRetrieve:
		return "retrieve"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "store":
		*t = MsgTStore
	case "retrieve":
		*t = MsgTRetrieve
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	case "unknown":
		*t = MsgTUnknown
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred outside of an operation

	// IKeyValue operations

	MsgTStore    // Create a record
	MsgTRetrieve // Read a record
)
