package memory

import (
	"encoding/json"
	"fmt"
)

// reservedPropertyNames are rejected as property keys at the data-manipulation
// layer (§4.4, I6). Callers use EntityType/EntityLabel-equivalent fields
// instead of embedding these names inside a props map.
var reservedPropertyNames = map[string]bool{
	"properties": true,
	"type":       true,
	"label":      true,
}

// ErrReservedWord is returned by [EncodeProps] when the caller's map uses a
// reserved property name (§4.4 failure mode ReservedWord{name}).
type ErrReservedWord struct{ Name string }

func (e *ErrReservedWord) Error() string {
	return fmt.Sprintf("memory: reserved property name %q (use props/entity_type/entity_label)", e.Name)
}

// EncodeProps serializes a caller-supplied property map into the single
// string value stored in Entity.Props / Relationship.Props, rejecting any
// reserved key (§4.4, §9 "graph reserved-words hazard"). A nil or empty map
// encodes to "".
func EncodeProps(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	for k := range m {
		if reservedPropertyNames[k] {
			return "", &ErrReservedWord{Name: k}
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("memory: encode props: %w", err)
	}
	return string(b), nil
}

// DecodeProps parses the serialized props string back into a map. An empty
// string decodes to an empty, non-nil map.
func DecodeProps(s string) (map[string]string, error) {
	if s == "" {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("memory: decode props: %w", err)
	}
	return m, nil
}
