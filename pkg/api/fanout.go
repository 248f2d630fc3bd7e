package api

import (
	"context"
	"strings"
	"sync"
)

// FanOutStage runs the given sub-stages concurrently against the same
// snapshot and merges their partial updates in argument order, so later
// sub-stages win on field collisions deterministically. A fatal error from
// any sub-stage fails the whole fan-out; non-fatal errors are folded into
// the error field and the merged updates of the successful sub-stages are
// kept.
func FanOutStage(stages ...StageFunc) StageFunc {
	return func(ctx context.Context, snap *Snapshot) StageResult {
		results := make([]StageResult, len(stages))

		var wg sync.WaitGroup
		wg.Add(len(stages))
		for i, fn := range stages {
			go func(i int, fn StageFunc) {
				defer wg.Done()
				results[i] = fn(ctx, snap.Clone())
			}(i, fn)
		}
		wg.Wait()

		merged := make(map[string]string)
		var failures []string
		for _, res := range results {
			if res.Err != nil {
				if res.Err.Fatal {
					return res
				}
				failures = append(failures, res.Err.Error())
				continue
			}
			for k, v := range res.Updates {
				merged[k] = v
			}
		}
		if len(failures) > 0 {
			merged[FieldError] = strings.Join(failures, "; ")
		}
		return UpdateResult(merged)
	}
}
