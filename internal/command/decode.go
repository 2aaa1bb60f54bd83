package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// messageSchema describes the inbound command. irr_time is constrained only
// for "On"; Stop and Emergency Halt accept whatever it carries.
const messageSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"id": {"type": "string"},
		"signal": {"type": "string", "enum": ["On", "Emergency Halt", "Stop"]}
	},
	"required": ["id", "signal"],
	"if": {"properties": {"signal": {"const": "On"}}},
	"then": {
		"required": ["irr_time"],
		"properties": {"irr_time": {"type": "number"}}
	}
}`

// wireMessage defers irr_time so a non-number cannot fail a Stop or Halt.
type wireMessage struct {
	ID      string          `json:"id"`
	Signal  string          `json:"signal"`
	IrrTime json.RawMessage `json:"irr_time"`
}

// Decoder parses raw payloads into Messages.
// A Decoder is safe for concurrent use.
type Decoder struct {
	schema *jsonschema.Schema
}

// NewDecoder compiles the command schema.
func NewDecoder() (*Decoder, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(messageSchema))
	if err != nil {
		return nil, fmt.Errorf("unmarshal command schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("command.json", doc); err != nil {
		return nil, fmt.Errorf("add command schema: %w", err)
	}
	s, err := c.Compile("command.json")
	if err != nil {
		return nil, fmt.Errorf("compile command schema: %w", err)
	}

	return &Decoder{schema: s}, nil
}

// Decode parses and validates one payload. Any failure wraps ErrMalformed.
func (d *Decoder) Decode(payload []byte) (Message, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := d.schema.Validate(inst); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var w wireMessage
	if err := json.Unmarshal(payload, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msg := Message{ID: w.ID, Signal: w.Signal}
	if w.Signal == SignalOn {
		var minutes float64
		if err := json.Unmarshal(w.IrrTime, &minutes); err != nil {
			return Message{}, fmt.Errorf("%w: irr_time: %v", ErrMalformed, err)
		}
		msg.IrrTime = &minutes
	}
	return msg, nil
}

// IsCancel reports whether payload carries a Stop or Emergency Halt signal.
// It does not validate the rest of the message.
func IsCancel(payload []byte) bool {
	var w struct {
		Signal string `json:"signal"`
	}
	if err := json.Unmarshal(payload, &w); err != nil {
		return false
	}
	return w.Signal == SignalStop || w.Signal == SignalEmergencyHalt
}
