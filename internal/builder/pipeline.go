package builder

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/budgetdb/internal/parser"
	"github.com/dshills/budgetdb/internal/staging"
	"github.com/dshills/budgetdb/pkg/types"
)

type job struct {
	src  parser.Source
	done chan *types.ParseResult
}

// process parses todo on up to Workers goroutines and loads the results in
// order on the calling goroutine. It reports stopped when ctx is cancelled
// before every file was loaded.
func (r *run) process(ctx context.Context, todo []parser.Source) (stopped bool, err error) {
	if len(todo) == 0 {
		return false, nil
	}

	jobs := make([]*job, len(todo))
	for i, src := range todo {
		jobs[i] = &job{src: src, done: make(chan *types.ParseResult, 1)}
	}

	// Parses that started finish even after a stop; their results are
	// dropped and the files are picked up by the next resume.
	parseCtx := context.WithoutCancel(ctx)
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)

	// window bounds how many parsed results can wait for the loader
	window := make(chan struct{}, 2*r.opts.Workers)

	var dispatcher sync.WaitGroup
	dispatcher.Add(1)
	go func() {
		defer dispatcher.Done()
		var g errgroup.Group
		g.SetLimit(r.opts.Workers)
		defer func() { _ = g.Wait() }()

		for _, j := range jobs {
			select {
			case window <- struct{}{}:
			case <-dispatchCtx.Done():
				return
			}
			if dispatchCtx.Err() != nil {
				return
			}
			g.Go(func() error {
				j.done <- r.parse(parseCtx, j.src)
				return nil
			})
		}
	}()
	defer func() {
		cancelDispatch()
		dispatcher.Wait()
	}()

	for _, j := range jobs {
		if ctx.Err() != nil {
			return true, nil
		}
		var res *types.ParseResult
		select {
		case res = <-j.done:
		case <-ctx.Done():
			return true, nil
		}
		<-window

		if err := r.load(ctx, j.src, res); err != nil {
			return false, err
		}
	}
	return false, nil
}

// parse produces the result for one file, directly or through staging
func (r *run) parse(ctx context.Context, src parser.Source) *types.ParseResult {
	if r.stager != nil {
		return r.parseStaged(ctx, src)
	}

	start := time.Now()
	r.metrics.WorkerStarted()
	res := parser.ParseFile(ctx, src.Path, r.parserOpts)
	r.metrics.WorkerDone()
	r.metrics.RecordParse(string(src.Kind), time.Since(start), res.HasError())
	return res
}

// parseStaged restages the file when its sidecar is stale and returns the
// staged result
func (r *run) parseStaged(ctx context.Context, src parser.Source) *types.ParseResult {
	var (
		sc  *staging.Sidecar
		err error
	)
	if staging.NeedsRestaging(src.Path, r.opts.StagingDir, r.opts.DocsRoot, src.Kind) {
		sc, err = r.stager.StageFile(ctx, src)
	} else {
		r.metrics.RecordSkip("staged")
		sc, err = staging.ReadSidecar(staging.SidecarPath(r.opts.StagingDir, src.RelPath))
	}
	if err != nil {
		return &types.ParseResult{SourceFile: src.RelPath, Kind: src.Kind, Err: err}
	}

	res, err := r.reader.ReadStaged(ctx, sc)
	if err != nil {
		return &types.ParseResult{SourceFile: src.RelPath, Kind: src.Kind, Err: err}
	}
	return res
}
