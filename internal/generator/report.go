package generator

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"sort"
	"strings"
	"time"

	"legacylens/internal/model"
)

//go:embed templates/report.html.tmpl
var reportTemplateText string

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(reportTemplateText))

type typeCount struct {
	Type  model.RelationshipType
	Count int
}

// reportData is the view model of index.html.
type reportData struct {
	Title             string
	GeneratedAt       string
	Summarized        bool
	Code              *model.CodeAnalysis
	Deps              *model.DependencyAnalysis
	Arch              *model.ArchitectureAnalysis
	Rel               *model.RelationshipMapping
	RelationshipTypes []typeCount
	Warnings          []model.Warning
}

func newReportData(in *input) reportData {
	d := reportData{
		Title:       in.title,
		GeneratedAt: in.createdAt.Format(time.RFC1123),
		Summarized:  in.summarized,
		Code:        in.code,
		Deps:        in.deps,
		Arch:        in.arch,
		Rel:         in.rel,
	}
	counts := make(map[model.RelationshipType]int)
	for _, r := range in.rel.Relationships {
		counts[r.Type]++
	}
	for _, t := range model.RelationshipTypes {
		if counts[t] > 0 {
			d.RelationshipTypes = append(d.RelationshipTypes, typeCount{Type: t, Count: counts[t]})
		}
	}
	for _, ws := range [][]model.Warning{in.code.Warnings, in.deps.Warnings, in.arch.Warnings, in.rel.Warnings} {
		d.Warnings = append(d.Warnings, ws...)
	}
	return d
}

// renderReport writes the aggregate HTML report.
func renderReport(ctx context.Context, in *input, out *sink) error {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, newReportData(in)); err != nil {
		return fmt.Errorf("execute report template: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return out.write("analysis report", "index.html", "html", buf.Bytes())
}

// ReportSignal is one notable event of a generation run.
type ReportSignal struct {
	Code     string  `json:"code"`
	Stage    string  `json:"stage"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value,omitempty"`
}

// StageMetric records how one artifact kind rendered.
type StageMetric struct {
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	DurationMS int64              `json:"duration_ms"`
	Counters   map[string]float64 `json:"counters,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type ReportSummary struct {
	StageCount        int            `json:"stage_count"`
	FailedStages      int            `json:"failed_stages"`
	SignalsBySeverity map[string]int `json:"signals_by_severity"`
}

// RunReport is the machine-readable report.json written next to index.html.
type RunReport struct {
	Version     string                 `json:"version"`
	GeneratedAt string                 `json:"generated_at"`
	OutputDir   string                 `json:"output_dir"`
	Generation  model.GenerationReport `json:"generation"`
	Stages      []StageMetric          `json:"stages"`
	Signals     []ReportSignal         `json:"signals"`
	Summary     ReportSummary          `json:"summary"`
}

func NewRunReport(outputDir string) *RunReport {
	return &RunReport{
		Version:     "v1",
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		OutputDir:   outputDir,
		Stages:      []StageMetric{},
		Signals:     []ReportSignal{},
	}
}

// AddStage records one finished artifact kind.
func (r *RunReport) AddStage(name string, d time.Duration, artifacts int, err error) {
	if r == nil || strings.TrimSpace(name) == "" {
		return
	}
	m := StageMetric{
		Name:       name,
		Status:     "ok",
		DurationMS: d.Milliseconds(),
		Counters:   map[string]float64{"artifacts": float64(artifacts)},
	}
	if err != nil {
		m.Status = "error"
		m.Error = err.Error()
	}
	r.Stages = append(r.Stages, m)
}

func (r *RunReport) AddSignal(code, stage, severity, message string, value float64) {
	if r == nil {
		return
	}
	s := ReportSignal{
		Code:     strings.TrimSpace(code),
		Stage:    strings.TrimSpace(stage),
		Severity: strings.ToLower(strings.TrimSpace(severity)),
		Message:  strings.TrimSpace(message),
		Value:    value,
	}
	if s.Code == "" || s.Stage == "" || s.Severity == "" || s.Message == "" {
		return
	}
	r.Signals = append(r.Signals, s)
}

func (r *RunReport) Finalize() {
	if r == nil {
		return
	}
	r.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	severityCount := map[string]int{
		"critical": 0,
		"warning":  0,
		"info":     0,
	}
	sort.SliceStable(r.Signals, func(i, j int) bool {
		pi := signalPriority(r.Signals[i].Severity)
		pj := signalPriority(r.Signals[j].Severity)
		if pi == pj {
			if r.Signals[i].Stage == r.Signals[j].Stage {
				return r.Signals[i].Code < r.Signals[j].Code
			}
			return r.Signals[i].Stage < r.Signals[j].Stage
		}
		return pi > pj
	})
	for _, s := range r.Signals {
		severityCount[s.Severity]++
	}

	failed := 0
	for _, st := range r.Stages {
		if st.Status != "ok" {
			failed++
		}
	}

	r.Summary = ReportSummary{
		StageCount:        len(r.Stages),
		FailedStages:      failed,
		SignalsBySeverity: severityCount,
	}
}

// Save finalizes the report and writes it as report.json.
func (r *RunReport) Save(out *sink) error {
	if r == nil {
		return nil
	}
	r.Finalize()
	data, err := marshalJSON(r)
	if err != nil {
		return err
	}
	return out.write("generation report", "report.json", "json", data)
}

func signalPriority(severity string) int {
	switch severity {
	case "critical", "error":
		return 3
	case "warning":
		return 2
	default:
		return 1
	}
}
