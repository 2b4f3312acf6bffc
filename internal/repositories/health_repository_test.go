package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
)

func slowCheck(delay time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestDependencyHealthRepositoryCollect(t *testing.T) {
	now := time.Date(2026, time.March, 10, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		checks     []DependencyCheck
		wantStatus string
		wantChecks map[string]domain.SystemHealthCheck
	}{
		{
			name: "all dependencies reachable",
			checks: []DependencyCheck{
				{Name: "mongo", Check: slowCheck(5 * time.Millisecond)},
				{Name: "kafka", Check: func(context.Context) error { return nil }},
			},
			wantStatus: domain.HealthStatusOK,
			wantChecks: map[string]domain.SystemHealthCheck{
				"mongo": {Status: domain.HealthStatusOK, Detail: "ok"},
				"kafka": {Status: domain.HealthStatusOK, Detail: "ok"},
			},
		},
		{
			name: "failing check degrades the report",
			checks: []DependencyCheck{
				{Name: "mongo", Check: func(context.Context) error { return errors.New("no primary") }},
				{Name: "kafka", Check: func(context.Context) error { return nil }},
			},
			wantStatus: domain.HealthStatusDegraded,
			wantChecks: map[string]domain.SystemHealthCheck{
				"mongo": {Status: domain.HealthStatusDegraded, Detail: "no primary", Error: "no primary"},
				"kafka": {Status: domain.HealthStatusOK, Detail: "ok"},
			},
		},
		{
			name: "timeout is an error",
			checks: []DependencyCheck{
				{Name: "secretManager", Timeout: 5 * time.Millisecond, Check: slowCheck(time.Second)},
				{Name: "mongo", Check: func(context.Context) error { return errors.New("no primary") }},
			},
			wantStatus: domain.HealthStatusError,
			wantChecks: map[string]domain.SystemHealthCheck{
				"secretManager": {Status: domain.HealthStatusError, Detail: "timeout", Error: context.DeadlineExceeded.Error()},
				"mongo":         {Status: domain.HealthStatusDegraded, Detail: "no primary", Error: "no primary"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks, WithDependencyClock(func() time.Time { return now }))
			if err != nil {
				t.Fatalf("NewDependencyHealthRepository: %v", err)
			}

			report, err := repo.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if report.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, report.Status)
			}
			if !report.GeneratedAt.Equal(now) {
				t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
			}
			if len(report.Checks) != len(tc.wantChecks) {
				t.Fatalf("expected %d checks, got %d", len(tc.wantChecks), len(report.Checks))
			}
			for name, want := range tc.wantChecks {
				got, ok := report.Checks[name]
				if !ok {
					t.Fatalf("missing check %s", name)
				}
				if got.Status != want.Status || got.Detail != want.Detail || got.Error != want.Error {
					t.Fatalf("check %s: expected %+v, got %+v", name, want, got)
				}
				if !got.CheckedAt.Equal(now) {
					t.Fatalf("check %s: expected checkedAt %s, got %s", name, now, got.CheckedAt)
				}
			}
		})
	}
}

func TestDependencyHealthRepositoryRejectsMalformedChecks(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "kafka"}})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	if _, err := repo.Collect(context.Background()); err == nil {
		t.Fatalf("expected error for check without function")
	}

	repo, err = NewDependencyHealthRepository([]DependencyCheck{{Check: func(context.Context) error { return nil }}})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}
	if _, err := repo.Collect(context.Background()); err == nil {
		t.Fatalf("expected error for unnamed check")
	}
}
