package main

import (
	"context"
	"errors"
	"testing"

	"deal-ranker/internal/compare"
)

func TestRunOnceManual(t *testing.T) {
	t.Parallel()

	stub := &stubWatcher{ran: true, outcome: compare.Outcome{Status: compare.StatusOK, Query: "rtx 4070"}}
	builds := 0
	cleaned := 0

	out, err := runOnceManual(context.Background(), AppConfig{}, func(AppConfig) (appDeps, func(), error) {
		builds++
		return appDeps{watcher: stub}, func() { cleaned++ }, nil
	})
	if err != nil {
		t.Fatalf("runOnceManual error: %v", err)
	}
	if out.Query != "rtx 4070" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if builds != 1 || cleaned != 1 {
		t.Fatalf("expected builder and cleanup called once, got %d/%d", builds, cleaned)
	}
	if stub.runOnceCalls != 1 {
		t.Fatalf("expected RunOnce called once, got %d", stub.runOnceCalls)
	}
}

func TestRunOnceManualBuilderError(t *testing.T) {
	t.Parallel()

	_, err := runOnceManual(context.Background(), AppConfig{}, func(AppConfig) (appDeps, func(), error) {
		return appDeps{}, func() {}, errors.New("build fail")
	})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestRunOnceManualSkipped(t *testing.T) {
	t.Parallel()

	_, err := runOnceManual(context.Background(), AppConfig{}, func(AppConfig) (appDeps, func(), error) {
		return appDeps{watcher: &stubWatcher{}}, func() {}, nil
	})
	if err == nil {
		t.Fatalf("expected error when run skipped")
	}
}

// --- stubs ---

type stubWatcher struct {
	outcome      compare.Outcome
	ran          bool
	runOnceCalls int
}

func (s *stubWatcher) RunOnce(context.Context) (compare.Outcome, bool, error) {
	s.runOnceCalls++
	return s.outcome, s.ran, nil
}

func (s *stubWatcher) Start(context.Context) error {
	return nil
}
