package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/itchyny/gojq"
	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// isStruct returns true if the value is a struct or a pointer to a struct
func isStruct(v any) bool {
	if v == nil {
		return false
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Struct {
		return true
	}
	return t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct
}

// containsStructs returns true if the value is a slice or array of structs
func containsStructs(v any) bool {
	if v == nil {
		return false
	}

	t := reflect.TypeOf(v)
	if t.Kind() != reflect.Slice && t.Kind() != reflect.Array {
		return false
	}

	elemType := t.Elem()
	if elemType.Kind() == reflect.Struct {
		return true
	}
	return elemType.Kind() == reflect.Ptr && elemType.Elem().Kind() == reflect.Struct
}

// JqTransform compiles a jq query into an EventTransformFunc that replaces
// the event payload with the query's output.
//
// The query can use two variables:
//   - $topic: the event topic URI
//   - $fields: an object of the fields extracted from the topic, if any
//
// Payloads are normalised before the query runs: JSON strings and byte
// slices are parsed, structs go through a JSON round trip and cty.Value is
// converted with go2cty2go.
//
// A query with several outputs yields an array; one with no output drops the
// event. Runtime errors are logged (when logger is non-nil) and the event
// passes through unchanged.
//
// Example:
//
//	celsius, err := JqTransform("{device: $fields.device, c: ((. - 32) * 5 / 9)}", logger)
func JqTransform(jqQuery string, logger *zap.Logger) (EventTransformFunc, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", jqQuery, err)
	}

	compiledQuery, err := gojq.Compile(query, gojq.WithVariables([]string{"$topic", "$fields"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", jqQuery, err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ev *Event) (*Event, bool) {
		log := logger.With(zap.String("jq_query", jqQuery), zap.String("topic", ev.Topic))

		jqInput, err := jqInputFor(ev.Payload)
		if err != nil {
			log.Error("JQ transform: could not prepare payload",
				zap.String("payload_type", fmt.Sprintf("%T", ev.Payload)),
				zap.Error(err))
			return ev, true
		}

		fields := make(map[string]any, len(ev.Fields))
		for k, v := range ev.Fields {
			fields[k] = v
		}

		ctx := ev.Ctx
		if ctx == nil {
			ctx = context.Background()
		}

		iter := compiledQuery.RunWithContext(ctx, jqInput, ev.Topic, fields)

		var results []any
		for {
			result, hasResult := iter.Next()
			if !hasResult {
				break
			}
			if execErr, ok := result.(error); ok {
				log.Error("JQ transform: JQ execution error", zap.Error(execErr))
				return ev, true
			}
			results = append(results, result)
		}

		if len(results) == 0 {
			return nil, false
		}

		modified := *ev
		if len(results) == 1 {
			modified.Payload = results[0]
		} else {
			modified.Payload = results
		}
		return &modified, true
	}, nil
}

// jqInputFor converts a payload into the plain maps, slices and scalars
// gojq operates on.
func jqInputFor(payload any) (any, error) {
	var jqInput any

	switch p := payload.(type) {
	case string:
		if err := json.Unmarshal([]byte(p), &jqInput); err != nil {
			return p, nil
		}
		return jqInput, nil

	case []byte:
		if err := json.Unmarshal(p, &jqInput); err != nil {
			return string(p), nil
		}
		return jqInput, nil

	case cty.Value:
		return go2cty2go.CtyToAny(p)

	default:
		if !isStruct(p) && !containsStructs(p) {
			return p, nil
		}
		jsonBytes, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(jsonBytes, &jqInput); err != nil {
			return nil, err
		}
		return jqInput, nil
	}
}
