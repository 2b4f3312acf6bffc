package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
)

type healthRepoFunc func(context.Context) (domain.SystemHealthReport, error)

func (f healthRepoFunc) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	return f(ctx)
}

func TestSystemServiceHealthReportStampsBuildInfo(t *testing.T) {
	clock := newTestClock()
	repo := healthRepoFunc(func(context.Context) (domain.SystemHealthReport, error) {
		return domain.SystemHealthReport{
			Checks: map[string]domain.SystemHealthCheck{
				"mongo": {Status: domain.HealthStatusOK},
				"kafka": {Status: domain.HealthStatusDegraded, Error: "leader not available"},
			},
		}, nil
	})
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            clock.Now,
		Build:            BuildInfo{Version: "1.4.0", Environment: "prod", StartedAt: testNow.Add(-2 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("health report: %v", err)
	}
	if report.Version != "1.4.0" || report.Environment != "prod" {
		t.Fatalf("unexpected build metadata %+v", report)
	}
	if report.Uptime != 2*time.Hour {
		t.Fatalf("expected uptime 2h, got %s", report.Uptime)
	}
	if !report.GeneratedAt.Equal(testNow) {
		t.Fatalf("expected generatedAt %s, got %s", testNow, report.GeneratedAt)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded status, got %s", report.Status)
	}
}

func TestSystemServiceHealthReportErrors(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatalf("expected error without health repository")
	}

	boom := errors.New("collect failed")
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: healthRepoFunc(func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, boom
		}),
	})
	if err != nil {
		t.Fatalf("new system service: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected collect error, got %v", err)
	}
}

func TestWorstStatus(t *testing.T) {
	cases := []struct {
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{nil, domain.HealthStatusOK},
		{map[string]domain.SystemHealthCheck{"a": {Status: domain.HealthStatusOK}}, domain.HealthStatusOK},
		{map[string]domain.SystemHealthCheck{"a": {Status: domain.HealthStatusDegraded}}, domain.HealthStatusDegraded},
		{map[string]domain.SystemHealthCheck{"a": {Status: domain.HealthStatusDegraded}, "b": {Status: domain.HealthStatusError}}, domain.HealthStatusError},
	}
	for _, tc := range cases {
		if got := worstStatus(tc.checks); got != tc.want {
			t.Fatalf("worstStatus(%v) = %s, want %s", tc.checks, got, tc.want)
		}
	}
}
