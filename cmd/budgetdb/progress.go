package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/dshills/budgetdb/pkg/types"
)

// progressReporter turns ProgressFunc updates into one progress bar per run
// of file phases, with scan and index phases printed as plain lines. When
// stderr is not a terminal, or --quiet is set, updates only go to the debug
// log.
type progressReporter struct {
	mu      sync.Mutex
	enabled bool
	noColor bool
	w       io.Writer
	logger  *zap.Logger
	bar     *progressbar.ProgressBar
}

func newProgressReporter(a *app) *progressReporter {
	return &progressReporter{
		enabled: !a.flags.quiet && isatty.IsTerminal(os.Stderr.Fd()),
		noColor: a.flags.noColor,
		w:       a.errOut,
		logger:  a.logger,
	}
}

// Func returns the reporter as a ProgressFunc
func (p *progressReporter) Func() types.ProgressFunc {
	return p.report
}

func (p *progressReporter) report(phase string, current, total int, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Debug("progress",
		zap.String("phase", phase),
		zap.Int("current", current),
		zap.Int("total", total),
		zap.String("detail", detail))
	if !p.enabled {
		return
	}

	switch phase {
	case types.PhaseScan, types.PhaseIndex:
		p.finish()
		if detail != "" {
			_, _ = cyan.Fprintf(p.w, "%-7s", phase)
			_, _ = dim.Fprintln(p.w, detail)
		}
	case types.PhaseDone, types.PhaseStopped:
		p.finish()
	default:
		if p.bar == nil && total > 0 {
			p.bar = p.newBar(total)
		}
		if p.bar != nil {
			p.bar.Describe(fmt.Sprintf("%-5s", phase))
			_ = p.bar.Set(current)
		}
	}
}

// Close clears any bar still on screen
func (p *progressReporter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finish()
}

func (p *progressReporter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

func (p *progressReporter) newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(!p.noColor),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
