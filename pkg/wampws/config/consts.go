package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/heimdalr/dag"
)

var constSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "const"},
	},
}

// extractConsts collects the attributes of every const block and returns
// the bodies with those blocks removed.
func extractConsts(bodies []hcl.Body) (hcl.Attributes, []hcl.Body, hcl.Diagnostics) {
	var diags hcl.Diagnostics
	consts := make(hcl.Attributes)
	remaining := make([]hcl.Body, 0, len(bodies))

	for _, body := range bodies {
		content, remain, contentDiags := body.PartialContent(constSchema)
		diags = diags.Extend(contentDiags)
		remaining = append(remaining, remain)
		if content == nil {
			continue
		}

		for _, block := range content.Blocks {
			attrs, attrDiags := block.Body.JustAttributes()
			diags = diags.Extend(attrDiags)

			for name, attr := range attrs {
				if prev, exists := consts[name]; exists {
					diags = diags.Append(&hcl.Diagnostic{
						Severity: hcl.DiagError,
						Summary:  "Duplicate attribute",
						Detail:   fmt.Sprintf("Attribute %s at %v is already defined at %v", name, attr.NameRange, prev.NameRange),
						Subject:  &attr.NameRange,
					})
					continue
				}
				consts[name] = attr
			}
		}
	}

	return consts, remaining, diags
}

func (c *Config) evaluateConsts(consts hcl.Attributes) hcl.Diagnostics {
	var diags hcl.Diagnostics

	for name, attr := range consts {
		if _, reserved := c.Constants[name]; reserved {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Reserved name",
				Detail:   fmt.Sprintf("%s is a reserved name and can't be used as a constant", name),
				Subject:  &attr.NameRange,
			})
		}
	}
	if diags.HasErrors() {
		return diags
	}

	attrs, sortDiags := SortAttributesByDependencies(consts)
	diags = diags.Extend(sortDiags)
	if diags.HasErrors() {
		return diags
	}

	for _, attr := range attrs {
		value, evalDiags := attr.Expr.Value(c.evalCtx)
		diags = diags.Extend(evalDiags)
		c.Constants[attr.Name] = value
	}

	return diags
}

// SortAttributesByDependencies orders attrs so that every attribute comes
// after the attributes it references. References to names outside attrs
// are left for evaluation to resolve.
func SortAttributesByDependencies(attrs hcl.Attributes) ([]*hcl.Attribute, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	graph := dag.NewDAG()

	for _, attr := range attrs {
		err := graph.AddVertexByID(attr.Name, attr)
		if err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to add attribute to dependency graph",
				Detail:   fmt.Sprintf("Error adding attribute %s: %s", attr.Name, err),
				Subject:  &attr.NameRange,
			})
		}
	}

	for name, attr := range attrs {
		for _, ref := range referencedRoots(attr) {
			if _, exists := attrs[ref]; !exists {
				continue
			}

			err := graph.AddEdge(ref, name)
			if err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("Cannot add dependency from %s to %s: %s", ref, name, err),
					Subject:  &attr.Range,
				})
			}
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	visitor := &attributeVertexVisitor{}
	graph.OrderedWalk(visitor)

	return visitor.attrs, diags
}

// referencedRoots returns the distinct root variable names used by attr.
func referencedRoots(attr *hcl.Attribute) []string {
	seen := make(map[string]bool)
	var refs []string

	for _, traversal := range attr.Expr.Variables() {
		root := traversal.RootName()
		if root == "" || seen[root] {
			continue
		}
		seen[root] = true
		refs = append(refs, root)
	}

	return refs
}

type attributeVertexVisitor struct {
	attrs []*hcl.Attribute
}

func (v *attributeVertexVisitor) Visit(vertex dag.Vertexer) {
	_, value := vertex.Vertex()
	v.attrs = append(v.attrs, value.(*hcl.Attribute))
}
