package transform

import (
	"context"

	"github.com/tsarna/go-structdiff"
)

// DiffTransform replaces an {"old": ..., "new": ...} event payload with the
// structural difference between the two values. Use it with ModifyPayload.
//
// A payload holding only "old" and "new" becomes the diff itself:
//
//	{"old": {"state": "idle", "load": 3}, "new": {"state": "busy", "load": 3}}
//	=> {"state": "busy"}
//
// Any other keys are kept and the diff goes under "delta":
//
//	{"old": ..., "new": ..., "host": "a1"}
//	=> {"host": "a1", "delta": {...}}
//
// Payloads of any other shape, and values structdiff cannot compare, pass
// through unchanged.
func DiffTransform(ctx context.Context, payload any, fields map[string]string) any {
	payloadMap, ok := payload.(map[string]any)
	if !ok {
		return payload
	}

	oldValue, hasOld := payloadMap["old"]
	newValue, hasNew := payloadMap["new"]
	if !hasOld || !hasNew {
		return payload
	}

	diff, err := structdiff.Diff(oldValue, newValue)
	if err != nil {
		return payload
	}

	if len(payloadMap) == 2 {
		return diff
	}

	result := make(map[string]any, len(payloadMap)-1)
	for key, value := range payloadMap {
		if key != "old" && key != "new" {
			result[key] = value
		}
	}
	result["delta"] = diff

	return result
}
