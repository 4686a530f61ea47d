package analysis

import (
	"math"

	"legacylens/internal/model"
)

func computeMetrics(code *model.CodeAnalysis, namingChecked, namingConforming int) model.CodeMetrics {
	m := model.CodeMetrics{
		SymbolsByKind:   make(map[model.SymbolKind]int),
		FilesByLanguage: make(map[string]int),
		NamingAdherence: 1,
	}
	for _, f := range code.Files {
		m.TotalFiles++
		if f.ParseFailed {
			m.FailedFiles++
		} else {
			m.ParsedFiles++
		}
		m.TotalLines += f.LineCount
		m.CodeLines += f.CodeLines
		m.CommentLines += f.CommentLines
		m.BlankLines += f.BlankLines
		m.FilesByLanguage[f.Language]++
	}

	var (
		cyclomatic, cognitive, length int
		documentable, documented      int
	)
	for _, s := range code.Symbols {
		m.TotalSymbols++
		m.SymbolsByKind[s.Kind]++
		switch {
		case s.Kind.IsType():
			m.TypeCount++
		case s.Kind.IsCallable():
			m.MethodCount++
			cyclomatic += s.Metrics.CyclomaticComplexity
			cognitive += s.Metrics.CognitiveComplexity
			length += s.Metrics.LinesOfCode
		default:
			continue
		}
		if s.Metrics.MaxNesting > m.MaxNesting {
			m.MaxNesting = s.Metrics.MaxNesting
		}
		documentable++
		if s.Documented {
			documented++
		}
	}

	if m.MethodCount > 0 {
		n := float64(m.MethodCount)
		m.AverageCyclomatic = round2(float64(cyclomatic) / n)
		m.AverageCognitive = round2(float64(cognitive) / n)
		m.AverageMethodLength = round2(float64(length) / n)
	}
	if total := m.CodeLines + m.CommentLines; total > 0 {
		m.CommentDensity = round4(float64(m.CommentLines) / float64(total))
	}
	if documentable > 0 {
		m.DocumentedRatio = round4(float64(documented) / float64(documentable))
	}
	if namingChecked > 0 {
		m.NamingAdherence = round4(float64(namingConforming) / float64(namingChecked))
	}
	return m
}

// Score derives the quality scores from codebase metrics. Every score is in
// [0,100]. Documentation never falls as comment density or the documented
// ratio rise; maintainability, testability and readability never rise with
// complexity or method length.
func Score(m model.CodeMetrics) model.QualityScores {
	cx := decay(m.AverageCyclomatic-1, 10)
	cog := decay(m.AverageCognitive, 15)
	length := decay(m.AverageMethodLength-20, 40)
	nesting := decay(float64(m.MaxNesting-3), 3)

	q := model.QualityScores{
		Documentation:   percent(0.5*saturate(m.CommentDensity, 0.25) + 0.5*clamp01(m.DocumentedRatio)),
		Maintainability: percent(0.45*cx + 0.35*length + 0.2*saturate(m.CommentDensity, 0.2)),
		Testability:     percent(0.5*cx + 0.3*cog + 0.2*nesting),
		Readability:     percent(0.4*clamp01(m.NamingAdherence) + 0.3*length + 0.3*cog),
	}
	q.Overall = round2((q.Documentation + q.Maintainability + q.Testability + q.Readability) / 4)
	return q
}

// decay maps an excess over a baseline to (0,1], falling as x grows.
func decay(x, scale float64) float64 {
	if x < 0 {
		x = 0
	}
	return 1 / (1 + x/scale)
}

func saturate(x, target float64) float64 {
	return clamp01(x / target)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func percent(x float64) float64 {
	return round2(100 * clamp01(x))
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
