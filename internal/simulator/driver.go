// Package simulator drives a concurrent worker per synthetic sequence
// against a kvbackend.Backend and reports the resulting aggregate
// stats.
package simulator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/biscuit-labs/kvcachesim/internal/config"
	"github.com/biscuit-labs/kvcachesim/internal/kvbackend"
	"github.com/biscuit-labs/kvcachesim/internal/workload"
)

// appendSleep approximates the compute time a real decode step would
// take, stretching the measurement window so peak concurrent
// residency is observable even on a fast CPU-bound run.
const appendSleep = 100 * time.Microsecond

// Run spawns one worker per entry in work, each of which calls
// InitSequence once and then AppendToken once per prompt token
// followed by once per gen token. Workers never call FinishSequence:
// the whole point of the experiment is peak concurrent residency, so
// cleanup is deliberately deferred to the backend's own Destroy. Run
// blocks until every worker has completed, then returns one Stats
// snapshot.
//
// Workers have no ordinary error to return; there is no cancellation
// or partial-result mode in this simulator. A panic inside one worker
// is still recovered and returned by Run through the errgroup (the
// first such error, if several workers panic), rather than taking the
// whole process down from one goroutine.
func Run(cfg config.Config, backend kvbackend.Backend, work []workload.SequenceWork) (kvbackend.Stats, error) {
	g, _ := errgroup.WithContext(context.Background())

	for _, w := range work {
		w := w
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = panicError{r}
				}
			}()
			runWorker(cfg, backend, w)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return kvbackend.Stats{}, err
	}
	return backend.Stats(), nil
}

func runWorker(cfg config.Config, backend kvbackend.Backend, w workload.SequenceWork) {
	id := backend.InitSequence(w)

	for t := 0; t < w.PromptTokens; t++ {
		backend.AppendToken(id)
		if cfg.EnableSleep {
			time.Sleep(appendSleep)
		}
	}
	for t := 0; t < w.GenTokens; t++ {
		backend.AppendToken(id)
		if cfg.EnableSleep {
			time.Sleep(appendSleep)
		}
	}
}

// panicError wraps a recovered panic value so it satisfies error
// without losing the original payload.
type panicError struct {
	value any
}

func (p panicError) Error() string {
	return fmt.Sprintf("simulator: worker panicked: %v", p.value)
}
