package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/tkoskine/stratum/pkg/api"
)

// EncodeState serializes a workflow state as the checkpoint record: a JSON
// object keyed by field name. State fields are already raw JSON, so the
// encoding round-trips exactly.
func EncodeState(st api.State) ([]byte, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// DecodeState is the inverse of EncodeState.
func DecodeState(data []byte) (api.State, error) {
	st := api.NewState()
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return api.State{}, fmt.Errorf("decode state: %w", err)
	}
	if st.Fields == nil {
		st.Fields = make(map[string]json.RawMessage)
	}
	return st, nil
}
