package viewport

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"photocull/internal/metrics"
)

func tinyImage() *image.NRGBA {
	return image.NewNRGBA(image.Rect(0, 0, 1, 1))
}

func instantBuild(ctx context.Context, path string, size int) (*image.NRGBA, error) {
	return tinyImage(), nil
}

func gatedBuild(gate <-chan struct{}) BuildFunc {
	return func(ctx context.Context, path string, size int) (*image.NRGBA, error) {
		select {
		case <-gate:
			return tinyImage(), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func collect(t *testing.T, s *Scheduler, n int) []Result {
	t.Helper()
	var out []Result
	deadline := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case res := <-s.Results():
			out = append(out, res)
		case <-deadline:
			t.Fatalf("timed out waiting for results: got %d of %d", len(out), n)
		}
	}
	return out
}

func TestSchedulerDeliversResults(t *testing.T) {
	s := NewScheduler(instantBuild, nil, 2)
	rng := Range{ThumbSize: 128, StartRow: 0, EndRow: 1, EntryCount: 3, TotalItems: 3, GridWidth: 800, GridHeight: 600}

	id, started := s.Update(context.Background(), rng, []string{"a.jpg", "b.jpg", "c.jpg"})
	if !started || id == "" {
		t.Fatalf("Update = (%q, %v), want a started job", id, started)
	}

	results := collect(t, s, 3)
	seen := make(map[string]bool)
	for _, res := range results {
		if res.JobID != id {
			t.Errorf("result carries job %q, want %q", res.JobID, id)
		}
		if res.Err != nil || res.Image == nil {
			t.Errorf("result for %s: err=%v image=%v", res.Path, res.Err, res.Image)
		}
		seen[res.Path] = true
	}
	if len(seen) != 3 {
		t.Errorf("got results for %d distinct paths, want 3", len(seen))
	}
}

func TestUpdateDedupesIdenticalRange(t *testing.T) {
	gate := make(chan struct{})
	s := NewScheduler(gatedBuild(gate), nil, 2)
	rng := Range{ThumbSize: 256, StartRow: 2, EndRow: 4, EntryCount: 2, TotalItems: 50, GridWidth: 800, GridHeight: 600}
	paths := []string{"a.jpg", "b.jpg"}

	first, started := s.Update(context.Background(), rng, paths)
	if !started {
		t.Fatal("first update should start a job")
	}

	// identical signature while the job is still running: no new job
	second, started := s.Update(context.Background(), rng, paths)
	if started {
		t.Error("identical viewport should not start a second job")
	}
	if second != first {
		t.Errorf("deduped update returned job %q, want running job %q", second, first)
	}

	close(gate)
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	collect(t, s, 2)
}

func TestUpdateReplacesChangedRange(t *testing.T) {
	gate := make(chan struct{})
	s := NewScheduler(gatedBuild(gate), nil, 2)

	rng := Range{ThumbSize: 128, StartRow: 0, EndRow: 2, EntryCount: 1, TotalItems: 10}
	first, _ := s.Update(context.Background(), rng, []string{"a.jpg"})

	// scrolled: different rows, same everything else
	rng.StartRow, rng.EndRow = 3, 5
	second, started := s.Update(context.Background(), rng, []string{"b.jpg"})
	if !started {
		t.Fatal("changed viewport should start a new job")
	}
	if second == first {
		t.Error("new job should have a fresh id")
	}

	close(gate)
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	// the replacement job's result arrives; the cancelled one errors or is
	// never delivered
	results := collect(t, s, 1)
	for _, res := range results {
		if res.JobID == second && res.Err != nil {
			t.Errorf("replacement job result errored: %v", res.Err)
		}
	}
}

func TestInvalidateDropsStaleResults(t *testing.T) {
	gate := make(chan struct{})
	s := NewScheduler(gatedBuild(gate), nil, 2)

	staleBefore := testutil.ToFloat64(metrics.ViewportStaleResultsTotal)
	gen := s.Generation()

	rng := Range{ThumbSize: 128, EntryCount: 1, TotalItems: 1}
	s.Update(context.Background(), rng, []string{"a.jpg"})

	s.Invalidate()
	if s.Generation() == gen {
		t.Error("Invalidate should bump the generation token")
	}
	close(gate)

	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(metrics.ViewportStaleResultsTotal) == staleBefore {
		if time.Now().After(deadline) {
			t.Fatal("stale result was never dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case res := <-s.Results():
		t.Errorf("stale result leaked to the channel: %+v", res)
	default:
	}
}

func TestUpdateSkipsCachedAndDuplicatePaths(t *testing.T) {
	cached := func(path string, size int) bool {
		return path == "cached.jpg" && size == 128
	}
	s := NewScheduler(instantBuild, cached, 2)

	rng := Range{ThumbSize: 128, EntryCount: 4, TotalItems: 4}
	_, started := s.Update(context.Background(), rng,
		[]string{"cached.jpg", "a.jpg", "a.jpg", "b.jpg"})
	if !started {
		t.Fatal("update with uncached paths should start a job")
	}
	if err := s.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	results := collect(t, s, 2)
	for _, res := range results {
		if res.Path == "cached.jpg" {
			t.Error("cached path should not have been rebuilt")
		}
	}
	select {
	case res := <-s.Results():
		t.Errorf("unexpected extra result: %+v", res)
	default:
	}
}

func TestWaitWithoutJob(t *testing.T) {
	s := NewScheduler(instantBuild, nil, 1)
	if err := s.Wait(context.Background()); err != nil {
		t.Errorf("Wait with no job = %v, want nil", err)
	}
}
