// Package healthcheck evaluates runtime dependency checks for the health
// endpoint.
package healthcheck

import "context"

const (
	// StatusOK indicates check passed.
	StatusOK = "ok"
	// StatusWarn indicates check completed with warning.
	StatusWarn = "warn"
	// StatusError indicates check failed.
	StatusError = "error"
)

// CheckResult is one runtime check item produced by a checker.
type CheckResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Checker evaluates one runtime dependency check.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// Report is the aggregated outcome of all registered checks.
type Report struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// Run evaluates all checkers and folds their statuses into one report.
// A single error check makes the whole report an error; warnings degrade
// an otherwise healthy report to warn.
func Run(ctx context.Context, checkers []Checker) Report {
	report := Report{Status: StatusOK, Checks: make([]CheckResult, 0, len(checkers))}
	for _, c := range checkers {
		result := c.Check(ctx)
		report.Checks = append(report.Checks, result)
		switch result.Status {
		case StatusError:
			report.Status = StatusError
		case StatusWarn:
			if report.Status == StatusOK {
				report.Status = StatusWarn
			}
		}
	}
	return report
}
