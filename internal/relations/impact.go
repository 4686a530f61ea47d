package relations

import (
	"sort"

	"legacylens/internal/git"
	"legacylens/internal/model"
)

// ImpactOptions bounds how far a change propagates.
type ImpactOptions struct {
	// MaxHops limits the dependents walk; zero or less means unbounded.
	MaxHops int
}

// AffectedSymbol is one symbol reached from a change. Score multiplies the
// strengths of the relationships walked to reach it.
type AffectedSymbol struct {
	Symbol string           `json:"symbol"`
	Kind   model.SymbolKind `json:"kind"`
	File   string           `json:"file"`
	Hops   int              `json:"hops"`
	Score  float64          `json:"score"`
	Via    string           `json:"via"`
}

// ImpactReport summarizes the symbols affected by a set of changes.
type ImpactReport struct {
	ChangedFiles       []string         `json:"changed_files"`
	DirectlyAffected   []AffectedSymbol `json:"directly_affected"`
	IndirectlyAffected []AffectedSymbol `json:"indirectly_affected"`
}

// Impact finds the symbols whose source ranges overlap changed lines, then
// walks the canonical relationships backwards to every symbol depending on
// them.
func Impact(code *model.CodeAnalysis, m *model.RelationshipMapping, changes []git.ChangedFile, opts ImpactOptions) *ImpactReport {
	report := &ImpactReport{
		ChangedFiles:       []string{},
		DirectlyAffected:   []AffectedSymbol{},
		IndirectlyAffected: []AffectedSymbol{},
	}
	if code == nil {
		return report
	}
	byFile := make(map[string][]*model.CodeSymbol)
	kinds := make(map[string]*model.CodeSymbol, len(code.Symbols))
	for i := range code.Symbols {
		s := &code.Symbols[i]
		kinds[s.FullName] = s
		if s.Kind != model.KindNamespace {
			byFile[s.Location.File] = append(byFile[s.Location.File], s)
		}
	}

	hops := make(map[string]int)
	score := make(map[string]float64)
	via := make(map[string]string)
	var queue []string
	for _, change := range changes {
		report.ChangedFiles = append(report.ChangedFiles, change.Path)
		for _, s := range byFile[change.Path] {
			if _, seen := hops[s.FullName]; seen || !isAffected(s, change.ChangedLines) {
				continue
			}
			hops[s.FullName] = 0
			score[s.FullName] = 1
			queue = append(queue, s.FullName)
		}
	}
	sort.Strings(queue)

	dependents := make(map[string][]model.Relationship)
	if m != nil {
		for _, r := range m.Relationships {
			dependents[r.Target] = append(dependents[r.Target], r)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if opts.MaxHops > 0 && hops[cur] >= opts.MaxHops {
			continue
		}
		for _, r := range dependents[cur] {
			cand := score[cur] * r.Strength
			if cand > score[r.Source] {
				score[r.Source] = cand
			}
			if _, seen := hops[r.Source]; !seen {
				hops[r.Source] = hops[cur] + 1
				via[r.Source] = cur
				queue = append(queue, r.Source)
			}
		}
	}

	names := make([]string, 0, len(hops))
	for n := range hops {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if hops[names[i]] != hops[names[j]] {
			return hops[names[i]] < hops[names[j]]
		}
		return names[i] < names[j]
	})
	for _, n := range names {
		a := AffectedSymbol{Symbol: n, Hops: hops[n], Score: score[n], Via: via[n]}
		if s, ok := kinds[n]; ok {
			a.Kind, a.File = s.Kind, s.Location.File
		}
		if a.Hops == 0 {
			report.DirectlyAffected = append(report.DirectlyAffected, a)
		} else {
			report.IndirectlyAffected = append(report.IndirectlyAffected, a)
		}
	}
	return report
}

func isAffected(s *model.CodeSymbol, lines []int) bool {
	end := s.Location.EndLine
	if end < s.Location.StartLine {
		end = s.Location.StartLine
	}
	for _, line := range lines {
		if line >= s.Location.StartLine && line <= end {
			return true
		}
	}
	return false
}
