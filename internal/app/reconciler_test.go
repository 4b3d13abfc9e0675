package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/poolvest/ledger-service/internal/domain"
)

type reconcileStoreStub struct {
	mu          sync.Mutex
	calls       int
	corrections []domain.CycleTotalCorrection
	err         error
	entered     chan struct{}
	block       chan struct{}
}

func (s *reconcileStoreStub) ReconcileCycleTotals(ctx context.Context) ([]domain.CycleTotalCorrection, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if s.entered != nil && first {
		close(s.entered)
	}
	if s.block != nil {
		<-s.block
	}
	return s.corrections, s.err
}

func (s *reconcileStoreStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestReconcilerRunInvokesStore(t *testing.T) {
	stub := &reconcileStoreStub{
		corrections: []domain.CycleTotalCorrection{
			{
				CycleID:  uuid.New(),
				OldTotal: decimal.NewFromInt(500),
				NewTotal: decimal.NewFromInt(600),
			},
		},
	}
	r := NewReconciler(stub)

	r.Run()

	if stub.callCount() != 1 {
		t.Fatalf("expected one reconcile call, got %d", stub.callCount())
	}
}

func TestReconcilerRunSurvivesStoreError(t *testing.T) {
	stub := &reconcileStoreStub{err: errors.New("db unavailable")}
	r := NewReconciler(stub)

	r.Run()
	r.Run()

	if stub.callCount() != 2 {
		t.Fatalf("expected failed pass not to wedge the reconciler, got %d calls", stub.callCount())
	}
}

func TestReconcilerSkipsOverlappingRuns(t *testing.T) {
	stub := &reconcileStoreStub{
		entered: make(chan struct{}),
		block:   make(chan struct{}),
	}
	r := NewReconciler(stub)

	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	// Wait until the first pass is inside the store call.
	<-stub.entered

	// A second pass while the first is in flight must be a no-op.
	r.Run()
	if stub.callCount() != 1 {
		t.Fatalf("expected overlapping pass to be skipped, got %d calls", stub.callCount())
	}

	close(stub.block)
	<-done

	r.Run()
	if stub.callCount() != 2 {
		t.Fatalf("expected reconciler to run again after the first pass finished, got %d calls", stub.callCount())
	}
}
