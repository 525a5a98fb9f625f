package reconcile

import (
	"context"
	"errors"
	"log"
	"time"

	domainLoan "lendsmart-backend/internal/domain/loan"
)

// Prober periodically sweeps loans whose sync state is Pending or Diverged
// and runs a probe for each on a bounded worker pool. It is the low-priority
// repair path; reads of individual pending loans also trigger probes inline.
type Prober struct {
	engine   *Engine
	loans    domainLoan.Repository
	interval time.Duration
	workers  int
	batch    int
}

func NewProber(e *Engine, loans domainLoan.Repository, interval time.Duration, workers int) *Prober {
	if workers <= 0 {
		workers = 4
	}
	return &Prober{engine: e, loans: loans, interval: interval, workers: workers, batch: 100}
}

// Run blocks until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.sweep(ctx)
		}
	}
}

func (p *Prober) sweep(ctx context.Context) {
	loans, err := p.loans.ListUnsettled(ctx, p.batch)
	if err != nil {
		log.Printf("prober: list unsettled: %v", err)
		return
	}
	if len(loans) == 0 {
		return
	}

	ids := make(chan string)
	done := make(chan struct{})
	for i := 0; i < p.workers; i++ {
		go func() {
			for loanID := range ids {
				if _, err := p.engine.Probe(ctx, loanID); err != nil {
					// Diverged loans were already alerted by the engine and
					// stay frozen; in-flight submissions settle on their own.
					if errors.Is(err, domainLoan.ErrDiverged) || errors.Is(err, ErrAlreadyInProgress) {
						continue
					}
					log.Printf("prober: loan %s: %v", loanID, err)
				}
			}
			done <- struct{}{}
		}()
	}
feed:
	for i := range loans {
		select {
		case <-ctx.Done():
			break feed
		case ids <- loans[i].LoanID:
		}
	}
	close(ids)
	for i := 0; i < p.workers; i++ {
		<-done
	}
}
