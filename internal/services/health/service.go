package health

import (
	"context"
	"sort"
	"time"
)

const probeTimeout = 2 * time.Second

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) error

// Service encapsulates health-related checks.
type Service struct {
	probes map[string]Probe
}

// NewService constructs a new health service. Nil probes are ignored.
func NewService(probes map[string]Probe) *Service {
	s := &Service{probes: map[string]Probe{}}
	for name, p := range probes {
		if p != nil {
			s.probes[name] = p
		}
	}
	return s
}

// Report is the health payload.
type Report struct {
	OK     bool              `json:"ok"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Status runs every probe and reports ok only when all pass.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true}
	if s == nil || len(s.probes) == 0 {
		return report
	}
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	report.Checks = make(map[string]string, len(names))
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.probes[name](pctx)
		cancel()
		if err != nil {
			report.OK = false
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	return report
}
