package generator

import "context"

// renderDiagrams writes the Mermaid diagrams and the DOT graph. Above the
// ceiling the class diagram is skipped and the DOT graph is drawn between
// components.
func renderDiagrams(ctx context.Context, in *input, out *sink) error {
	mg := NewMermaidGenerator(in.code, in.arch, in.rel)
	if !in.summarized {
		if err := out.write("class diagram", "diagrams/classes.mmd", "mermaid", []byte(mg.GenerateClassDiagram())); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := out.write("component diagram", "diagrams/components.mmd", "mermaid", []byte(mg.GenerateComponentDiagram())); err != nil {
		return err
	}
	if err := out.write("layer diagram", "diagrams/layers.mmd", "mermaid", []byte(mg.GenerateLayerDiagram())); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := renderDOT(in.view)
	if err != nil {
		return err
	}
	return out.write("dependency graph", "diagrams/dependencies.dot", "dot", data)
}
