package generator

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

type table struct {
	name   string
	file   string
	header []string
	rows   func(in *input) [][]string
}

var csvTables = []table{
	{
		name:   "symbols",
		file:   "csv/symbols.csv",
		header: []string{"full_name", "name", "kind", "access", "namespace", "assembly", "language", "file", "start_line", "end_line", "lines", "cyclomatic", "members"},
		rows: func(in *input) [][]string {
			out := make([][]string, 0, len(in.code.Symbols))
			for _, s := range in.code.Symbols {
				out = append(out, []string{s.FullName, s.Name, string(s.Kind), string(s.Access), s.Namespace, s.Assembly, s.Language,
					s.Location.File, itoa(s.Location.StartLine), itoa(s.Location.EndLine),
					itoa(s.Metrics.LinesOfCode), itoa(s.Metrics.CyclomaticComplexity), itoa(s.Metrics.MemberCount)})
			}
			return out
		},
	},
	{
		name:   "dependencies",
		file:   "csv/dependencies.csv",
		header: []string{"origin", "from", "to", "kind", "constructs", "count", "file", "line"},
		rows: func(in *input) [][]string {
			var out [][]string
			for _, d := range in.deps.Static {
				constructs := make([]string, len(d.Constructs))
				for i, c := range d.Constructs {
					constructs[i] = string(c)
				}
				out = append(out, []string{"static", d.From, d.To, string(d.Kind), strings.Join(constructs, ";"), itoa(d.Count),
					d.Location.File, itoa(d.Location.StartLine)})
			}
			for _, d := range in.deps.Dynamic {
				to := d.ResolvedTo
				if to == "" {
					to = d.Target
				}
				out = append(out, []string{"dynamic", d.From, to, string(d.Kind), d.Pattern, "1", d.Location.File, itoa(d.Location.StartLine)})
			}
			for _, d := range in.deps.Database {
				out = append(out, []string{"database", d.From, d.Object, d.Operation, d.Technology, "1", d.Location.File, itoa(d.Location.StartLine)})
			}
			for _, d := range in.deps.External {
				for _, from := range d.ReferencedBy {
					out = append(out, []string{"external", from, d.Name, d.Kind, d.Version, itoa(d.ReferenceCount), "", ""})
				}
			}
			return out
		},
	},
	{
		name:   "relationships",
		file:   "csv/relationships.csv",
		header: []string{"id", "source", "target", "type", "strength", "direction", "count", "source_component", "target_component", "source_layer", "target_layer"},
		rows: func(in *input) [][]string {
			out := make([][]string, 0, len(in.rel.Relationships))
			for _, r := range in.rel.Relationships {
				out = append(out, []string{r.ID, r.Source, r.Target, string(r.Type), ftoa(r.Strength), string(r.Direction), itoa(r.Count),
					r.SourceComponent, r.TargetComponent, r.SourceLayer, r.TargetLayer})
			}
			return out
		},
	},
	{
		name:   "components",
		file:   "csv/components.csv",
		header: []string{"name", "assembly", "layer", "tier", "types", "symbols", "afferent", "efferent", "instability", "abstractness", "distance", "lcom", "tcc"},
		rows: func(in *input) [][]string {
			out := make([][]string, 0, len(in.arch.Components))
			for _, c := range in.arch.Components {
				out = append(out, []string{c.Name, c.Assembly, c.Layer, string(c.Tier), itoa(len(c.Types)), itoa(c.SymbolCount),
					itoa(c.Coupling.Afferent), itoa(c.Coupling.Efferent), ftoa(c.Coupling.Instability), ftoa(c.Coupling.Abstractness),
					ftoa(c.Coupling.Distance), itoa(c.Cohesion.LCOM), ftoa(c.Cohesion.TCC)})
			}
			return out
		},
	},
	{
		name:   "violations",
		file:   "csv/violations.csv",
		header: []string{"kind", "severity", "symbol", "from", "to", "file", "line", "value", "threshold", "description"},
		rows: func(in *input) [][]string {
			out := make([][]string, 0, len(in.arch.Violations))
			for _, v := range in.arch.Violations {
				out = append(out, []string{string(v.Kind), string(v.Severity), v.Symbol, v.From, v.To, v.Location.File,
					itoa(v.Location.StartLine), ftoa(v.Value), ftoa(v.Threshold), v.Description})
			}
			return out
		},
	},
}

// renderCSV writes one flat table per entity.
func renderCSV(ctx context.Context, in *input, out *sink) error {
	for _, t := range csvTables {
		if err := ctx.Err(); err != nil {
			return err
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write(t.header); err != nil {
			return err
		}
		if err := w.WriteAll(t.rows(in)); err != nil {
			return fmt.Errorf("write %s: %w", t.name, err)
		}
		if err := out.write(t.name+" table", t.file, "csv", buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
