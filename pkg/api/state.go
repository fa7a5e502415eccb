package api

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Control carries run-level directives that are not owned by any stage.
type Control struct {
	// ForceRestart discards any existing checkpoint and recomputes the
	// whole run from START.
	ForceRestart bool `json:"force_restart"`
}

// State is the workflow state threaded through a run: a record keyed by
// declared field name, plus the two reserved members Error and Control.
//
// Field values are kept as raw JSON so that a persisted state round-trips
// exactly (serialize-then-deserialize reproduces an equal state), which is
// the checkpoint format the engine relies on for resumption.
//
// State values are treated as immutable snapshots: stages receive a copy
// and the engine produces updated states via Apply. Only the engine mutates
// the authoritative state, one committed stage output at a time.
type State struct {
	Fields  map[string]json.RawMessage `json:"fields"`
	Error   string                     `json:"error,omitempty"`
	Control Control                    `json:"control"`
}

// NewState returns an empty state.
func NewState() State {
	return State{Fields: make(map[string]json.RawMessage)}
}

// Clone returns a deep copy. The copy shares nothing with the receiver, so
// a stage holding its input snapshot never observes later commits.
func (s State) Clone() State {
	out := State{
		Fields:  make(map[string]json.RawMessage, len(s.Fields)),
		Error:   s.Error,
		Control: s.Control,
	}
	for k, v := range s.Fields {
		buf := make(json.RawMessage, len(v))
		copy(buf, v)
		out.Fields[k] = buf
	}
	return out
}

// Has reports whether the named field is set.
func (s State) Has(field string) bool {
	_, ok := s.Fields[field]
	return ok
}

// HasAll reports whether every named field is set. An empty list is
// vacuously false so that a stage without declared outputs is never
// mistaken for already-completed during resumption.
func (s State) HasAll(fields []string) bool {
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !s.Has(f) {
			return false
		}
	}
	return true
}

// Apply returns a new state with every field in output replacing the
// current value for that field. The receiver is not modified; the caller
// commits the returned state atomically or not at all.
func (s State) Apply(output map[string]json.RawMessage) State {
	next := s.Clone()
	maps.Copy(next.Fields, output)
	return next
}

// Field decodes the named field into T.
// The second return is false when the field is unset.
func Field[T any](s State, name string) (T, bool, error) {
	var v T
	raw, ok := s.Fields[name]
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, true, fmt.Errorf("decode field %q: %w", name, err)
	}
	return v, true, nil
}

// MarshalField encodes a value for use in a stage output map.
func MarshalField(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// MustField is a test and template helper: it encodes v and panics on error.
func MustField(v any) json.RawMessage {
	data, err := MarshalField(v)
	if err != nil {
		panic(err)
	}
	return data
}
