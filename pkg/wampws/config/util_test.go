package config

import (
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.Pos{Line: 1, Column: 1})
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestParseDuration(t *testing.T) {
	cfg := &Config{
		evalCtx: &hcl.EvalContext{
			Variables: map[string]cty.Value{
				"ten": cty.NumberIntVal(10),
			},
		},
	}

	tests := []struct {
		name     string
		expr     string
		expected time.Duration
		wantErr  bool
	}{
		{"integer seconds", `30`, 30 * time.Second, false},
		{"fractional seconds", `1.5`, 1500 * time.Millisecond, false},
		{"variable", `ten`, 10 * time.Second, false},
		{"go duration", `"1m30s"`, 90 * time.Second, false},
		{"go duration with spaces", `"  250ms "`, 250 * time.Millisecond, false},
		{"iso minutes", `"PT5M"`, 5 * time.Minute, false},
		{"iso hours and seconds", `"PT1H10S"`, time.Hour + 10*time.Second, false},
		{"zero", `0`, 0, false},
		{"negative number", `-5`, 0, true},
		{"negative go duration", `"-1s"`, 0, true},
		{"garbage string", `"soon"`, 0, true},
		{"bad iso", `"PXYZ"`, 0, true},
		{"bool", `true`, 0, true},
		{"list", `[1]`, 0, true},
		{"null", `null`, 0, true},
		{"unknown variable", `eleven`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, diags := cfg.ParseDuration(parseExpr(t, tt.expr))
			if tt.wantErr {
				assert.True(t, diags.HasErrors())
				return
			}
			require.False(t, diags.HasErrors(), diags.Error())
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestIsExpressionProvided(t *testing.T) {
	assert.False(t, IsExpressionProvided(nil))
	assert.True(t, IsExpressionProvided(parseExpr(t, `"x"`)))

	empty := hcl.StaticExpr(cty.NullVal(cty.DynamicPseudoType), hcl.Range{})
	assert.False(t, IsExpressionProvided(empty))
}
