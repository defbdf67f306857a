package privacy

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// ProcessBatch anonymizes texts concurrently with the configured worker count.
// Results keep input order and each item succeeds or fails on its own: an error
// or panic in one item is recorded on that item only. All items share the
// consistency cache, so a value repeated across items gets one replacement.
func (p *Protector) ProcessBatch(ctx context.Context, texts []string) []BatchResult {
	results := make([]BatchResult, len(texts))
	workers := p.workers
	if workers > len(texts) {
		workers = len(texts)
	}
	if workers < 1 {
		return results
	}

	wp := pool.New().WithMaxGoroutines(workers)
	for i, text := range texts {
		wp.Go(func() {
			results[i] = p.processItem(ctx, i, text)
		})
	}
	wp.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.Info("Batch processed",
		zap.Int("items", len(texts)),
		zap.Int("failed", failed),
		zap.Int("workers", workers),
	)
	return results
}

func (p *Protector) processItem(ctx context.Context, index int, text string) (result BatchResult) {
	result.Index = index
	defer func() {
		if r := recover(); r != nil {
			result = BatchResult{Index: index, Err: fmt.Errorf("item %d panicked: %v", index, r)}
		}
	}()

	out, report, err := p.AnonymizeWithReport(ctx, text)
	if err != nil {
		result.Err = fmt.Errorf("item %d: %w", index, err)
		return result
	}
	result.Output = out
	result.Report = report
	return result
}
