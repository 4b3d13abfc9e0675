/**
 * @description
 * This file contains the periodic consistency reconciler. Cycle deposit totals
 * are materialized aggregates; every mutating path recomputes them inside its
 * own transaction, but as a safety net this job periodically re-derives every
 * non-distributed cycle's total from its paid payments and rewrites any row
 * that drifted.
 *
 * @dependencies
 * - context, log, sync/atomic, time: Standard Go libraries.
 * - internal/domain: Correction records.
 */

package app

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/poolvest/ledger-service/internal/domain"
)

// Reconciler re-derives cycle deposit totals on a schedule.
type Reconciler struct {
	repo    reconcileStore
	timeout time.Duration
	running atomic.Bool
}

// reconcileStore is the slice of the repository the reconciler needs.
type reconcileStore interface {
	ReconcileCycleTotals(ctx context.Context) ([]domain.CycleTotalCorrection, error)
}

// NewReconciler creates a reconciler bound to the given repository.
func NewReconciler(repo reconcileStore) *Reconciler {
	return &Reconciler{repo: repo, timeout: 30 * time.Second}
}

// Run executes one reconciliation pass. Overlapping runs are skipped so a
// slow pass never stacks behind the cron schedule.
func (r *Reconciler) Run() {
	if !r.running.CompareAndSwap(false, true) {
		log.Println("level=warn component=reconciler msg=\"previous pass still running; skipping\"")
		return
	}
	defer r.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	corrections, err := r.repo.ReconcileCycleTotals(ctx)
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"reconcile pass failed\" err=%v", err)
		return
	}
	if len(corrections) == 0 {
		return
	}
	for _, c := range corrections {
		log.Printf("level=warn component=reconciler msg=\"fixed drifted cycle total\" cycle_id=%s old_total=%s new_total=%s",
			c.CycleID, c.OldTotal, c.NewTotal)
	}
}
