package config

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// GetEnvObject returns the process environment as a cty object, exposed to
// config expressions as "env". Names that are not valid HCL identifiers have
// the offending characters replaced with underscores, so FOO.BAR is env.FOO_BAR.
func GetEnvObject() cty.Value {
	envMap := make(map[string]cty.Value)

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}
		envMap[sanitizeEnvVarName(key)] = cty.StringVal(value)
	}

	if len(envMap) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(envMap)
}

// sanitizeEnvVarName converts environment variable names to valid HCL attribute names
func sanitizeEnvVarName(name string) string {
	if name == "" {
		return "_"
	}

	var result strings.Builder
	for i, r := range name {
		switch {
		case i == 0 && !isValidFirstChar(r):
			result.WriteRune('_')
		case i > 0 && !isValidChar(r):
			result.WriteRune('_')
		default:
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isValidFirstChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isValidChar(r rune) bool {
	return isValidFirstChar(r) || (r >= '0' && r <= '9') || r == '-'
}
