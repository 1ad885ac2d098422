package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bryanwahyu/uxtrap/internal/application"
	"github.com/bryanwahyu/uxtrap/internal/application/evaluations"
	"github.com/bryanwahyu/uxtrap/internal/config"
	"github.com/bryanwahyu/uxtrap/internal/domain/evaluation"
	"github.com/bryanwahyu/uxtrap/internal/infra/ai"
	"github.com/bryanwahyu/uxtrap/internal/infra/ai/prompt"
	"github.com/bryanwahyu/uxtrap/internal/infra/imaging"
	"github.com/bryanwahyu/uxtrap/internal/middleware"
)

// newClient is swapped in tests.
var newClient = ai.NewClient

type evaluateFlags struct {
	configPath string
	image      string
	workflow   string
	epic       string
	persona    string
	useCase    string
	out        string
	provider   string
	model      string
	verbose    bool
}

func EvaluateCmd() *cobra.Command {
	var f evaluateFlags
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one screenshot and write the export document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runEvaluate(ctx, cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.configPath, "config", "config.yaml", "Config file (optional)")
	cmd.Flags().StringVar(&f.image, "image", "", "Screenshot to evaluate")
	cmd.Flags().StringVar(&f.workflow, "workflow", "", "Workflow name")
	cmd.Flags().StringVar(&f.epic, "epic", "", "Epic details")
	cmd.Flags().StringVar(&f.persona, "persona", "", "Persona")
	cmd.Flags().StringVar(&f.useCase, "use-case", "", "Use case")
	cmd.Flags().StringVar(&f.out, "out", ".", "Directory for the export file, - for stdout")
	cmd.Flags().StringVar(&f.provider, "provider", "", "Override ai.provider")
	cmd.Flags().StringVar(&f.model, "model", "", "Override ai.model")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Debug logging")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func loadConfig(f evaluateFlags) (*config.Config, error) {
	// flag wins over UXTRAP_AI_PROVIDER; set before Load so the key lookup follows it
	if f.provider != "" {
		if err := os.Setenv("UXTRAP_AI_PROVIDER", f.provider); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.model != "" {
		cfg.AI.Model = f.model
	} else if f.provider != "" {
		cfg.AI.Model = config.DefaultModels[cfg.AI.Provider]
	}
	cfg.Log.Format = "console"
	if f.verbose {
		cfg.Log.Level = "debug"
	} else {
		cfg.Log.Level = "warn"
	}
	return cfg, nil
}

func runEvaluate(ctx context.Context, out io.Writer, f evaluateFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	data, err := os.ReadFile(f.image)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	mt, err := middleware.DetectImageType(data)
	if err != nil {
		return err
	}

	ectx, err := middleware.SanitizeContext(evaluation.Context{
		WorkflowName: f.workflow,
		EpicDetails:  f.epic,
		Persona:      f.persona,
		UseCase:      f.useCase,
	})
	if err != nil {
		return err
	}

	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	prep := imaging.New(cfg.Imaging.MaxWidth, cfg.Imaging.Quality)
	prep.MaxPixels = cfg.Imaging.MaxPixels
	svc := &evaluations.Service{
		Preprocessor: prep,
		Client:       client,
		Prompt:       prompt.Build,
		Clock:        application.SystemClock{},
		Logger:       logger,
	}

	name := middleware.SanitizeFileName(filepath.Base(f.image))
	logger.Debug("evaluating",
		zap.String("image", name),
		zap.String("mediaType", mt),
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model),
	)
	res, err := svc.Evaluate(ctx, ectx, evaluation.UploadedImage{
		Name:      name,
		MediaType: mt,
		Size:      len(data),
		Data:      data,
	})
	if err != nil {
		if errors.Is(err, evaluation.ErrCancelled) {
			// informational, not a failure
			fmt.Fprintln(out, evaluation.UserMessage(err))
			return nil
		}
		logger.Debug("evaluation failed", zap.Error(err), zap.String("kind", string(evaluation.KindOf(err))))
		return errors.New(evaluation.UserMessage(err))
	}

	now := svc.Now()
	doc := evaluation.ExportDocument{
		EvaluatedAt: now,
		ImageName:   name,
		Context:     ectx.Trimmed(),
		Result:      res,
	}
	body, err := doc.Marshal()
	if err != nil {
		return err
	}

	if f.out == "-" {
		_, err = out.Write(append(body, '\n'))
		return err
	}
	path := filepath.Join(f.out, evaluation.ExportFilename(ectx.WorkflowName, now))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	printResult(out, res)
	fmt.Fprintf(out, "\nexport written to %s\n", path)
	return nil
}

func printResult(w io.Writer, res *evaluation.Result) {
	fmt.Fprintf(w, "Verdict: %s  (score %d/10)\n", res.Summary.Verdict, res.OverallScore)
	if res.Summary.Health != "" {
		fmt.Fprintf(w, "%s\n", res.Summary.Health)
	}
	if len(res.Traps) == 0 {
		fmt.Fprintln(w, "No traps detected.")
		return
	}
	fmt.Fprintf(w, "\n%d trap(s):\n", len(res.Traps))
	for _, t := range res.Traps {
		fmt.Fprintf(w, "  [%s] %s (%s) at %.0f%%,%.0f%%\n", t.Severity, t.Name, t.Tenet, t.Location.X, t.Location.Y)
		if d := strings.TrimSpace(t.Diagnostic); d != "" {
			fmt.Fprintf(w, "       %s\n", d)
		}
	}
	if len(res.Priorities) > 0 {
		fmt.Fprintln(w, "\nPriorities:")
		for i, p := range res.Priorities {
			fmt.Fprintf(w, "  %d. %s\n", i+1, p)
		}
	}
}
