package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"legacylens/internal/apperrors"
	"legacylens/internal/config"
	"legacylens/internal/crawler"
	"legacylens/internal/logging"
	"legacylens/internal/model"
	"legacylens/internal/pipeline"
	"legacylens/internal/relations"
	"legacylens/internal/storage"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	rootCmd = &cobra.Command{
		Use:           "legacylens",
		Short:         "Map the structure, dependencies and architecture of a legacy codebase",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath string
	docPath    string
	outDir     string
	visualize  bool
	noProgress bool
	baseRef    string
	maxHops    int
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")

	analyzeCmd.Flags().StringVarP(&docPath, "output", "o", "legacylens.json", "Where to save the analysis (.json document or .db SQLite database)")
	analyzeCmd.Flags().BoolVar(&visualize, "visualize", false, "Generate visualizations after the analysis")
	analyzeCmd.Flags().StringVar(&outDir, "out", "", "Visualization output directory (defaults to the configured one)")
	analyzeCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress spinner")

	visualizeCmd.Flags().StringVar(&outDir, "out", "", "Visualization output directory (defaults to the configured one)")

	impactCmd.Flags().StringVar(&baseRef, "base", "HEAD", "Git revision to diff the working tree against")
	impactCmd.Flags().IntVar(&maxHops, "max-hops", 3, "Maximum dependents walk depth (0 for unbounded)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(visualizeCmd)
	rootCmd.AddCommand(impactCmd)
}

// exitCode maps the error kinds to process exit codes.
func exitCode(err error) int {
	switch apperrors.Classify(err) {
	case apperrors.KindConfiguration:
		return 2
	default:
		return 1
	}
}

// setup loads the configuration and builds the logger from it.
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logging.New(cfg.Logging), nil
}

// newSpinner returns a spinner on stderr, or nil when stderr is not a
// terminal or progress is disabled.
func newSpinner() *progressbar.ProgressBar {
	if noProgress || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze an application and save the result",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		if visualize {
			cfg.Visualization.Enabled = true
		}
		if outDir != "" {
			cfg.Visualization.OutputDir = outDir
		}

		opts := pipeline.Options{Logger: logger}
		if bar := newSpinner(); bar != nil {
			defer bar.Finish()
			opts.OnState = func(s pipeline.State) { bar.Describe(s.String()) }
			opts.CrawlProgress = func(p crawler.Progress) { _ = bar.Set(p.FilesProcessed) }
		}
		o, err := pipeline.New(cfg, opts)
		if err != nil {
			return err
		}

		fmt.Printf("📂 Analyzing %s\n", root)
		a, runErr := o.Run(cmd.Context(), root)
		if a == nil {
			return runErr
		}
		if err := storage.Save(a, docPath); err != nil {
			return errors.Join(runErr, fmt.Errorf("failed to save analysis: %w", err))
		}
		printSummary(a)
		fmt.Printf("💾 Analysis saved to %s\n", docPath)
		return runErr
	},
}

var visualizeCmd = &cobra.Command{
	Use:   "visualize <analysis>",
	Short: "Render diagrams, graphs and reports from a saved analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		a, err := storage.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load analysis: %w", err)
		}
		if outDir == "" {
			outDir = cfg.Visualization.OutputDir
		}
		o, err := pipeline.New(cfg, pipeline.Options{Logger: logger})
		if err != nil {
			return err
		}
		pkg, err := o.GenerateVisualizations(cmd.Context(), a, outDir)
		if err != nil {
			return err
		}
		for _, w := range pkg.Warnings {
			fmt.Printf("⚠️  %s\n", w.Message)
		}
		fmt.Printf("🎨 %d artifacts written to %s\n", len(pkg.Artifacts), pkg.OutputDir)
		return nil
	},
}

var impactCmd = &cobra.Command{
	Use:   "impact <analysis>",
	Short: "List the symbols affected by working tree changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := storage.Load(args[0])
		if err != nil {
			return fmt.Errorf("failed to load analysis: %w", err)
		}
		report, err := pipeline.Impact(cmd.Context(), a, baseRef, relations.ImpactOptions{MaxHops: maxHops})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func printSummary(a *model.ApplicationAnalysis) {
	m := a.Metrics
	status := "✅"
	if a.Status == model.StatusFailed {
		status = "❌"
	} else if a.Partial {
		status = "⚠️ "
	}
	fmt.Printf("%s %s: %s in %v\n", status, a.Name, a.Status, a.Duration.Round(time.Millisecond))
	fmt.Printf("  -> %d files, %d symbols, %d types\n", m.TotalFiles, m.TotalSymbols, m.TypeCount)
	fmt.Printf("  -> %d dependencies (%d external, %d cycles)\n", m.StaticDependencies, m.ExternalDependencies, m.CircularDependencies)
	fmt.Printf("  -> %d components in %d layers, %d violations\n", m.ComponentCount, m.LayerCount, m.ViolationCount)
	fmt.Printf("  -> %d relationships, %d warnings\n", m.RelationshipCount, m.WarningCount)
	if a.Visualization != nil {
		fmt.Printf("🎨 Visualizations in %s\n", a.Visualization.OutputDir)
	}
}
