package functions

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GetLogFunctions returns log_debug, log_info, log_warn, log_error and
// log_msg(level, message, ...). Each returns true, so they can be used
// inside a payload expression. A nil logger yields no-op versions that
// return false.
func GetLogFunctions(logger *zap.Logger) map[string]function.Function {
	if logger == nil {
		logger = zap.NewNop()
	}

	return map[string]function.Function{
		"log_debug": makeLogFunc(logger, zapcore.DebugLevel),
		"log_info":  makeLogFunc(logger, zapcore.InfoLevel),
		"log_warn":  makeLogFunc(logger, zapcore.WarnLevel),
		"log_error": makeLogFunc(logger, zapcore.ErrorLevel),
		"log_msg":   makeLogLevelFunc(logger),
	}
}

func makeLogFunc(logger *zap.Logger, level zapcore.Level) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "message", Type: cty.String},
		},
		VarParam: &function.Parameter{
			Name: "fields",
			Type: cty.DynamicPseudoType,
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			logger.Log(level, args[0].AsString(), convertArgsToZapFields(args[1:])...)
			return cty.True, nil
		},
	})
}

func makeLogLevelFunc(logger *zap.Logger) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "level", Type: cty.String},
			{Name: "message", Type: cty.String},
		},
		VarParam: &function.Parameter{
			Name: "fields",
			Type: cty.DynamicPseudoType,
		},
		Type: function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			level, err := zapcore.ParseLevel(args[0].AsString())
			if err != nil {
				level = zapcore.InfoLevel
			}
			logger.Log(level, args[1].AsString(), convertArgsToZapFields(args[2:])...)
			return cty.True, nil
		},
	})
}

// convertArgsToZapFields names fields after the keys of a single object or
// map argument, and positionally ($1, $2, ...) otherwise.
func convertArgsToZapFields(args []cty.Value) []zap.Field {
	var fields []zap.Field

	if len(args) == 1 && !args[0].IsNull() && args[0].IsKnown() &&
		(args[0].Type().IsMapType() || args[0].Type().IsObjectType()) && args[0].LengthInt() > 0 {
		for it := args[0].ElementIterator(); it.Next(); {
			key, val := it.Element()
			fields = append(fields, convertCtyValueToZapField(key.AsString(), val))
		}
		return fields
	}

	for i, arg := range args {
		fields = append(fields, convertCtyValueToZapField(fmt.Sprintf("$%d", i+1), arg))
	}
	return fields
}

func convertCtyValueToZapField(key string, val cty.Value) zap.Field {
	if val.IsNull() {
		return zap.String(key, "<null>")
	}
	if !val.IsKnown() {
		return zap.String(key, "<unknown>")
	}

	switch {
	case val.Type() == cty.String:
		return zap.String(key, val.AsString())
	case val.Type() == cty.Number:
		bf := val.AsBigFloat()
		if bf.IsInt() {
			if i, accuracy := bf.Int64(); accuracy == 0 {
				return zap.Int64(key, i)
			}
		}
		f, _ := bf.Float64()
		return zap.Float64(key, f)
	case val.Type() == cty.Bool:
		return zap.Bool(key, val.True())
	case val.Type().IsListType() || val.Type().IsTupleType() || val.Type().IsSetType():
		var elements []string
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			elements = append(elements, elementString(elem))
		}
		return zap.String(key, "["+strings.Join(elements, ", ")+"]")
	default:
		return zap.String(key, val.GoString())
	}
}

func elementString(val cty.Value) string {
	if val.IsNull() || !val.IsKnown() {
		return val.GoString()
	}
	switch val.Type() {
	case cty.String:
		return fmt.Sprintf("%q", val.AsString())
	case cty.Number:
		return val.AsBigFloat().String()
	case cty.Bool:
		return fmt.Sprintf("%t", val.True())
	default:
		return val.GoString()
	}
}
