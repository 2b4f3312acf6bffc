package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/picklepantry/api/internal/domain"
	"github.com/picklepantry/api/internal/repositories"
)

// BuildInfo is the release metadata reported on /healthz and /readyz.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	health repositories.HealthRepository
	now    func() time.Time
	build  BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService returns a SystemService that stamps dependency reports with build
// metadata and process uptime.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	svc := &systemService{
		health: deps.HealthRepository,
		now:    func() time.Time { return clock().UTC() },
		build:  deps.Build,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	if strings.TrimSpace(report.Version) == "" {
		report.Version = s.build.Version
	}
	if strings.TrimSpace(report.Environment) == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}
	if strings.TrimSpace(report.Status) == "" {
		report.Status = worstStatus(report.Checks)
	}
	return report, nil
}

// worstStatus folds check results: any error wins, then any non-ok status degrades.
func worstStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
