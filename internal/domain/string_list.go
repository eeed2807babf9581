package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ProtocolList stores a protocol set inside a JSON text column.
type ProtocolList []Protocol

// Value implements driver.Valuer so ProtocolList can be stored as JSON.
func (s ProtocolList) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}

	data, err := json.Marshal([]Protocol(NormalizeProtocols(s)))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner to hydrate the ProtocolList from the database.
func (s *ProtocolList) Scan(value any) error {
	data, err := scanBytes(value, "domain.ProtocolList")
	if err != nil {
		return err
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}

	var parsed []Protocol
	if err := json.Unmarshal(data, &parsed); err != nil {
		return err
	}
	*s = NormalizeProtocols(parsed)
	return nil
}

func (s ProtocolList) Equal(other ProtocolList) bool {
	a, b := NormalizeProtocols(s), NormalizeProtocols(other)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EndpointMap stores the protocol -> URI map inside a JSON text column.
type EndpointMap map[Protocol]string

func EndpointMapOf(endpoints map[Protocol]string) EndpointMap {
	out := make(EndpointMap, len(endpoints))
	for p, uri := range endpoints {
		out[p] = uri
	}
	return out
}

func (m EndpointMap) Value() (driver.Value, error) {
	if len(m) == 0 {
		return "{}", nil
	}

	data, err := json.Marshal(map[Protocol]string(m))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m *EndpointMap) Scan(value any) error {
	data, err := scanBytes(value, "domain.EndpointMap")
	if err != nil {
		return err
	}

	parsed := make(map[Protocol]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return err
		}
	}
	*m = parsed
	return nil
}

func (m EndpointMap) Equal(other EndpointMap) bool {
	if len(m) != len(other) {
		return false
	}
	for p, uri := range m {
		if otherURI, ok := other[p]; !ok || otherURI != uri {
			return false
		}
	}
	return true
}

func scanBytes(value any, typeName string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", typeName, value)
	}
}
