package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/kiranshivaraju/sitegen/pkg/models"
)

const demoTicks = 4

// demoRepositoryFiles is the repository size the simulated scan reports,
// capped by the job's MaxFiles.
const demoRepositoryFiles = 240

// DemoSteps returns a simulated site generation run. Each step reports
// progress demoTicks times, delay apart. Stages disabled by cfg are skipped.
func DemoSteps(delay time.Duration, cfg models.JobConfig) []Step {
	tick := delay / demoTicks

	steps := []Step{
		{Stage: models.StageInitializing, Weight: 2, Message: "Preparing workspace", Run: simulate(tick, nil)},
		{Stage: models.StageRepositoryScan, Weight: 8, Message: "Scanning repository", Run: simulate(tick, func(sc *StepContext) {
			sc.FilesDiscovered(min(demoRepositoryFiles, max(cfg.MaxFiles, 1)))
		})},
		{Stage: models.StageFileAnalysis, Weight: 20, Message: "Analyzing files", Run: simulate(tick, nil)},
	}
	if cfg.EnableAI {
		steps = append(steps, Step{Stage: models.StageAIProcessing, Weight: 25, Message: "Summarizing project with AI", Run: simulate(tick, nil)})
	}
	steps = append(steps, Step{Stage: models.StageContentGeneration, Weight: 15, Message: "Writing site content", Run: simulate(tick, nil)})
	if cfg.EnableVisuals {
		steps = append(steps, Step{Stage: models.StageVisualGeneration, Weight: 10, Message: "Rendering visuals", Run: simulate(tick, nil)})
	}
	steps = append(steps,
		Step{Stage: models.StageSiteAssembly, Weight: 10, Message: "Assembling pages", Run: simulate(tick, nil)},
		Step{Stage: models.StageOptimization, Weight: 5, Message: "Optimizing assets", Run: simulate(tick, nil)},
		Step{Stage: models.StageFinalization, Weight: 5, Message: "Publishing site", Run: simulate(tick, nil)},
	)
	return steps
}

// simulate sleeps through demoTicks ticks, reporting progress after each.
// onStart, if set, runs before the first tick.
func simulate(tick time.Duration, onStart func(sc *StepContext)) func(context.Context, *StepContext) error {
	return func(ctx context.Context, sc *StepContext) error {
		if onStart != nil {
			onStart(sc)
		}
		for i := 1; i <= demoTicks; i++ {
			if err := sleep(ctx, tick); err != nil {
				return err
			}
			sc.Progress(float64(i)/demoTicks, "")
			sc.Details(map[string]any{"step": fmt.Sprintf("%d/%d", i, demoTicks)})
		}
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
