package viewport

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"photocull/internal/logging"
	"photocull/internal/metrics"
	"photocull/internal/workers"
)

// Range describes the visible slice of the grid. Two Ranges are equal when
// nothing the scheduler cares about moved, so Range doubles as the job
// deduplication signature.
type Range struct {
	ThumbSize  int
	StartRow   int
	EndRow     int
	EntryCount int
	TotalItems int
	GridWidth  int
	GridHeight int
}

// Result is one finished thumbnail, delivered on the scheduler's channel.
type Result struct {
	JobID string
	Path  string
	Index int
	Image *image.NRGBA
	Err   error
}

// BuildFunc produces the thumbnail for a single path at the given size.
type BuildFunc func(ctx context.Context, path string, size int) (*image.NRGBA, error)

// CachedFunc reports whether a bitmap for (path, size) is already cached.
// Cached paths are excluded from batch jobs.
type CachedFunc func(path string, size int) bool

type job struct {
	id     string
	sig    Range
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler turns viewport updates into bounded batch jobs on a worker
// pool. A new update cancels the running job unless its Range is identical;
// results carrying a stale generation are dropped on delivery.
type Scheduler struct {
	build      BuildFunc
	cached     CachedFunc
	poolSize   int
	results    chan Result
	generation atomic.Uint64

	mu      sync.Mutex
	current *job
}

// NewScheduler builds a scheduler around build. cached may be nil when no
// cache probe is available. workerCap of 0 sizes the pool relative to the
// CPU count.
func NewScheduler(build BuildFunc, cached CachedFunc, workerCap int) *Scheduler {
	poolSize := workers.ForThumbnails(workerCap)
	metrics.ViewportWorkers.Set(float64(poolSize))
	return &Scheduler{
		build:    build,
		cached:   cached,
		poolSize: poolSize,
		results:  make(chan Result, 64),
	}
}

// missing returns the order-preserving deduplicated subset of paths that
// lack a cached bitmap at size.
func (s *Scheduler) missing(paths []string, size int) []string {
	out := make([]string, 0, len(paths))
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if s.cached != nil && s.cached(p, size) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Results is the delivery channel for finished thumbnails. The scheduler
// never closes it.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// Generation returns the current generation token. Results stamped with an
// older token never reach the results channel.
func (s *Scheduler) Generation() uint64 {
	return s.generation.Load()
}

// Invalidate bumps the generation token and cancels any running job. Call it
// when the directory changes; in-flight results become stale immediately.
func (s *Scheduler) Invalidate() {
	s.generation.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.cancel()
		metrics.ViewportJobsTotal.WithLabelValues("cancelled").Inc()
		s.current = nil
	}
}

// Update schedules the thumbnails for rng over paths (the entries inside the
// range, viewport order). An update whose Range matches the running job is a
// no-op returning that job's id. Otherwise the running job is cancelled and
// a new one starts.
func (s *Scheduler) Update(ctx context.Context, rng Range, paths []string) (string, bool) {
	paths = s.missing(paths, rng.ThumbSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		select {
		case <-s.current.done:
			// finished, fall through to schedule anew
		default:
			if s.current.sig == rng {
				metrics.ViewportJobsTotal.WithLabelValues("deduped").Inc()
				logging.Debug("viewport update deduped against running job %s", s.current.id)
				return s.current.id, false
			}
			s.current.cancel()
			metrics.ViewportJobsTotal.WithLabelValues("cancelled").Inc()
		}
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{
		id:     uuid.NewString(),
		sig:    rng,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.current = j

	gen := s.generation.Load()
	metrics.ViewportJobsTotal.WithLabelValues("submitted").Inc()
	logging.Debug("viewport job %s: rows %d-%d, %d entries at size %d",
		j.id, rng.StartRow, rng.EndRow, len(paths), rng.ThumbSize)

	go s.run(jobCtx, j, gen, rng.ThumbSize, paths)
	return j.id, true
}

// Wait blocks until the current job (if any) finishes or ctx expires.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	j := s.current
	s.mu.Unlock()

	if j == nil {
		return nil
	}
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, j *job, gen uint64, size int, paths []string) {
	defer close(j.done)
	defer j.cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.poolSize)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			img, err := s.build(gctx, path, size)
			if gctx.Err() != nil {
				// cancelled mid-build, nothing to paint
				if s.generation.Load() != gen {
					metrics.ViewportStaleResultsTotal.Inc()
				}
				return nil
			}
			s.deliver(gctx, gen, Result{
				JobID: j.id,
				Path:  path,
				Index: i,
				Image: img,
				Err:   err,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logging.Warn("viewport job %s aborted: %v", j.id, err)
	}
}

// deliver drops results from a superseded generation instead of sending.
func (s *Scheduler) deliver(ctx context.Context, gen uint64, res Result) {
	if s.generation.Load() != gen {
		metrics.ViewportStaleResultsTotal.Inc()
		return
	}
	select {
	case s.results <- res:
	case <-ctx.Done():
	}
}
