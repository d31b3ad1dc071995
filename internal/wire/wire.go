// Package wire defines the JSON-over-WebSocket request and response
// envelopes Lantern's ConnectionActor speaks, per the wire format the
// engine exposes to browser clients: every message is a JSON object with
// a "type" discriminator, and request/response ids round-trip verbatim.
package wire

import (
	"encoding/json"
	"fmt"
)

// Request tags.
const (
	TypeNop         = "Nop"
	TypeEcho        = "Echo"
	TypeReaderQuery = "ReaderQuery"
	TypeWriterQuery = "WriterQuery"
	TypeLiveQuery   = "LiveQuery"
	TypeMigration   = "Migration"
	TypeHTTPRequest = "HttpRequest"
)

// Response-only tags.
const (
	TypeHello        = "Hello"
	TypeFatalError   = "FatalError"
	TypeError        = "Error"
	TypeChannelError = "ChannelError"
)

// Query mirrors §3's ReaderQuery/WriterQuery shape: a SQL string plus
// named bind arguments. Missing arguments bind NULL; extras are ignored,
// so Arguments intentionally has no validation beyond JSON decoding.
type Query struct {
	Query     string             `json:"query"`
	Arguments map[string]*string `json:"arguments"`
}

// WriterResult is the reply to a successful WriterQuery.
type WriterResult struct {
	ChangedRows     uint64 `json:"changed_rows"`
	LastInsertRowID int64  `json:"last_insert_rowid"`
}

// envelope is the wire shape shared by every tagged message: a "type"
// discriminator plus whatever fields that type carries. Decoding happens
// in two passes — first into envelope to read Type, then json.Unmarshal
// of the raw bytes into the concrete Go struct for that type — because
// Go has no analogue to serde's "tag" adjacently-tagged enum decoding.
type envelope struct {
	Type string `json:"type"`
}

// Request is the decoded form of any inbound client message.
type Request struct {
	Type string

	// Every request type
	ID   string
	Text string // Echo only

	// ReaderQuery, WriterQuery
	ReaderQuery Query
	WriterQuery Query

	// LiveQuery
	Queries map[string]Query

	// Migration
	DDL string

	// HttpRequest
	HTTPRequest OutboundHTTPRequest
}

// OutboundHTTPRequest is the body of an HttpRequest tag, per §6's outbound
// HTTP helper contract.
type OutboundHTTPRequest struct {
	Method  string     `json:"method"`
	URL     string     `json:"url"`
	Headers [][2]string `json:"headers"`
	Body    *string    `json:"body,omitempty"`
}

// OutboundHTTPResponse is the reply payload for a successful HttpRequest.
type OutboundHTTPResponse struct {
	Status  uint16     `json:"status"`
	Headers [][2]string `json:"headers"`
	Body    *string    `json:"body"`
}

// DecodeRequest parses a single inbound text frame. A decode failure is
// reported to the caller as-is; the ConnectionActor turns it into a
// ChannelError per §7 ("decode failures as ChannelError{message}").
func DecodeRequest(data []byte) (*Request, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case TypeNop:
		var body struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return &Request{Type: TypeNop, ID: body.ID}, nil

	case TypeEcho:
		var body struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return &Request{Type: TypeEcho, ID: body.ID, Text: body.Text}, nil

	case TypeReaderQuery:
		var body struct {
			ID    string `json:"id"`
			Query Query  `json:"query"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return &Request{Type: TypeReaderQuery, ID: body.ID, ReaderQuery: body.Query}, nil

	case TypeWriterQuery:
		var body struct {
			ID    string `json:"id"`
			Query Query  `json:"query"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return &Request{Type: TypeWriterQuery, ID: body.ID, WriterQuery: body.Query}, nil

	case TypeLiveQuery:
		var body struct {
			ID      string           `json:"id"`
			Queries map[string]Query `json:"queries"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return &Request{Type: TypeLiveQuery, ID: body.ID, Queries: body.Queries}, nil

	case TypeMigration:
		var body struct {
			ID  string `json:"id"`
			DDL string `json:"ddl"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return &Request{Type: TypeMigration, ID: body.ID, DDL: body.DDL}, nil

	case TypeHTTPRequest:
		var body struct {
			ID      string              `json:"id"`
			Request OutboundHTTPRequest `json:"request"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, err
		}
		return &Request{Type: TypeHTTPRequest, ID: body.ID, HTTPRequest: body.Request}, nil

	default:
		return nil, fmt.Errorf("unrecognized request type %q", env.Type)
	}
}

// --- Response encoders ---
//
// Each function returns the JSON bytes for one response tag. They are
// thin wrappers around anonymous structs rather than a shared Response
// interface, because the response shapes share no fields beyond "type"
// and an optional "id" — a common base type would buy nothing here.

func EncodeHello() []byte {
	return mustMarshal(map[string]string{"type": TypeHello, "id": "server_hello"})
}

func EncodeFatalError(id, errorCode, message string) []byte {
	return mustMarshal(map[string]string{
		"type":    TypeFatalError,
		"id":      id,
		"error":   errorCode,
		"message": message,
	})
}

func EncodeNop(id string) []byte {
	return mustMarshal(map[string]string{"type": TypeNop, "id": id})
}

func EncodeEcho(id, text string) []byte {
	return mustMarshal(map[string]string{"type": TypeEcho, "id": id, "text": text})
}

func EncodeReaderQuery(id string, results any) []byte {
	return mustMarshal(map[string]any{"type": TypeReaderQuery, "id": id, "results": results})
}

func EncodeWriterQuery(id string, result WriterResult) []byte {
	return mustMarshal(map[string]any{"type": TypeWriterQuery, "id": id, "results": result})
}

func EncodeLiveQuery(id string, results map[string]any) []byte {
	if results == nil {
		results = map[string]any{}
	}
	return mustMarshal(map[string]any{"type": TypeLiveQuery, "id": id, "results": results})
}

func EncodeMigration(id string) []byte {
	return mustMarshal(map[string]string{"type": TypeMigration, "id": id})
}

func EncodeHTTPRequest(id string, resp OutboundHTTPResponse) []byte {
	return mustMarshal(map[string]any{"type": TypeHTTPRequest, "id": id, "response": resp})
}

func EncodeError(id, text string) []byte {
	return mustMarshal(map[string]string{"type": TypeError, "id": id, "text": text})
}

func EncodeChannelError(message string) []byte {
	return mustMarshal(map[string]string{"type": TypeChannelError, "message": message})
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Every value passed to mustMarshal here is a map of strings,
		// primitive numbers, or rowjson.Row values, none of which can
		// fail to marshal; a failure here is a programming error.
		panic(fmt.Sprintf("wire: marshal response: %v", err))
	}
	return data
}
