package pipeline

import (
	"context"
	"errors"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/git"
	"legacylens/internal/model"
	"legacylens/internal/relations"
)

// GenerateVisualizations renders a saved or fresh analysis into outputPath
// with the default visualization settings and attaches the package to a.
// Only invalid input or an unusable output directory is an error; failed
// artifact kinds are reported as package warnings.
func GenerateVisualizations(ctx context.Context, a *model.ApplicationAnalysis, outputPath string) (*model.VisualizationPackage, error) {
	o, err := New(config.Default(), Options{})
	if err != nil {
		return nil, err
	}
	return o.GenerateVisualizations(ctx, a, outputPath)
}

// GenerateVisualizations is the package-level function bound to the
// orchestrator's configuration and logger.
func (o *Orchestrator) GenerateVisualizations(ctx context.Context, a *model.ApplicationAnalysis, outputPath string) (*model.VisualizationPackage, error) {
	if a == nil {
		return nil, apperrors.NewConfigurationError("analysis", "", errors.New("analysis is required"))
	}
	if outputPath == "" {
		return nil, apperrors.NewConfigurationError("output", outputPath, errors.New("output path is required"))
	}
	return o.visualize(ctx, a, outputPath)
}

// Impact maps the lines changed since baseRef onto the analysis and walks
// the relationships backwards to the symbols that depend on them.
func Impact(ctx context.Context, a *model.ApplicationAnalysis, baseRef string, opts relations.ImpactOptions) (*relations.ImpactReport, error) {
	if a == nil {
		return nil, apperrors.NewConfigurationError("analysis", "", errors.New("analysis is required"))
	}
	changes, err := git.ChangedFiles(ctx, a.RootPath, baseRef)
	if err != nil {
		return nil, err
	}
	return relations.Impact(&a.Code, &a.Relationships, changes, opts), nil
}
