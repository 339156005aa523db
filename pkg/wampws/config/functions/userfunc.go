package functions

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/userfunc"
	"github.com/zclconf/go-cty/cty/function"
)

// ExtractUserFunctions decodes "function" blocks from bodies and returns
// them with the bodies that remain. getEvalCtx is called lazily when a user
// function runs, so it may return a context built after extraction.
func ExtractUserFunctions(bodies []hcl.Body, getEvalCtx func() *hcl.EvalContext) (map[string]function.Function, []hcl.Body, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	remainingBodies := make([]hcl.Body, 0, len(bodies))
	allFuncs := make(map[string]function.Function)

	for _, body := range bodies {
		funcs, remainingBody, funcDiags := userfunc.DecodeUserFunctions(body, "function", getEvalCtx)
		diags = diags.Extend(funcDiags)
		if funcDiags.HasErrors() {
			continue
		}

		remainingBodies = append(remainingBodies, remainingBody)

		for name, fn := range funcs {
			if _, exists := allFuncs[name]; exists {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate function",
					Detail:   fmt.Sprintf("Function %s is already defined", name),
				})
				continue
			}
			allFuncs[name] = fn
		}
	}

	if diags.HasErrors() {
		return nil, nil, diags
	}

	return allFuncs, remainingBodies, diags
}
