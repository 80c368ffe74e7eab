package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// CopyContext deep-copies a context map, dropping binary-valued fields at
// every nesting level. Scalar values are shared; maps and slices are cloned.
func CopyContext(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		copied, keep := copyValue(v)
		if !keep {
			continue
		}
		dst[k] = copied
	}
	return dst
}

func copyValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case []byte:
		// Binary payloads never enter snapshots.
		return nil, false
	case map[string]interface{}:
		return CopyContext(val), true
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, item := range val {
			copied, keep := copyValue(item)
			if !keep {
				continue
			}
			out = append(out, copied)
		}
		return out, true
	default:
		return val, true
	}
}

// HashContext returns a stable hex digest of the context map. Go's JSON
// encoder sorts map keys, so equal maps hash equally.
func HashContext(m map[string]interface{}) string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// NewSnapshot copies the context and stamps it for the given stage.
func NewSnapshot(stage Stage, contextMap map[string]interface{}) ContextSnapshot {
	copied := CopyContext(contextMap)
	return ContextSnapshot{
		Stage:     stage,
		Context:   copied,
		Hash:      HashContext(copied),
		Timestamp: time.Now(),
	}
}

// FieldReachable reports whether key exists as a top-level entry of the map
// or anywhere inside nested maps and slices.
func FieldReachable(key string, m map[string]interface{}) bool {
	if m == nil {
		return false
	}
	if _, ok := m[key]; ok {
		return true
	}
	for _, v := range m {
		if valueContainsKey(key, v) {
			return true
		}
	}
	return false
}

func valueContainsKey(key string, v interface{}) bool {
	switch val := v.(type) {
	case map[string]interface{}:
		if _, ok := val[key]; ok {
			return true
		}
		for _, nested := range val {
			if valueContainsKey(key, nested) {
				return true
			}
		}
	case []interface{}:
		for _, item := range val {
			if valueContainsKey(key, item) {
				return true
			}
		}
	}
	return false
}
