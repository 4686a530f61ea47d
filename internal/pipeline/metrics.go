package pipeline

import "legacylens/internal/model"

// aggregate collects the headline figures of every phase.
func aggregate(a *model.ApplicationAnalysis) model.ApplicationMetrics {
	return model.ApplicationMetrics{
		TotalFiles:           a.FileSystem.TotalFiles,
		SourceFiles:          a.FileSystem.FilesByCategory[model.CategorySource],
		TotalLines:           a.Code.Metrics.TotalLines,
		TotalSymbols:         a.Code.Metrics.TotalSymbols,
		TypeCount:            a.Code.Metrics.TypeCount,
		MethodCount:          a.Code.Metrics.MethodCount,
		StaticDependencies:   len(a.Dependencies.Static),
		ExternalDependencies: len(a.Dependencies.External),
		CircularDependencies: len(a.Dependencies.Cycles),
		ComponentCount:       len(a.Architecture.Components),
		LayerCount:           len(a.Architecture.Layers),
		ViolationCount:       len(a.Architecture.Violations),
		RelationshipCount:    len(a.Relationships.Relationships),
		WarningCount:         len(a.Warnings),
		AverageComplexity:    a.Code.Metrics.AverageCyclomatic,
		Quality:              a.Code.Quality,
	}
}
