package replay

import (
	"fmt"
	"time"

	"github.com/caseforge/caseforge/internal/infra/logger"
)

// Execution statuses of a case run.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
	StatusSkip    = "skip"
)

// LogEntry is one captured execution log line.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// APIRequestInfo records one HTTP exchange made during a run, including
// exchanges whose transport failed (nil status code and body).
type APIRequestInfo struct {
	InterfaceID  string         `json:"interface_id,omitempty"`
	Method       string         `json:"method"`
	URL          string         `json:"url"`
	Headers      map[string]any `json:"headers,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	Body         any            `json:"body,omitempty"`
	StatusCode   *int           `json:"status_code"`
	ResponseBody any            `json:"response_body"`
}

// CaseResult is the full outcome of one case execution.
type CaseResult struct {
	CaseID       string           `json:"case_id,omitempty"`
	CaseName     string           `json:"case_name"`
	Status       string           `json:"status"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      time.Time        `json:"end_time"`
	Duration     float64          `json:"duration"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Traceback    string           `json:"traceback,omitempty"`
	Logs         []LogEntry       `json:"logs,omitempty"`
	APIRequests  []APIRequestInfo `json:"api_requests_info"`
}

// NewCaseResult starts a result clock for the named case.
func NewCaseResult(caseID, caseName string) *CaseResult {
	return &CaseResult{
		CaseID:      caseID,
		CaseName:    caseName,
		StartTime:   time.Now(),
		APIRequests: []APIRequestInfo{},
	}
}

// Finish stamps the end time, computes the duration and sets the status.
func (r *CaseResult) Finish(status string) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime).Seconds()
	r.Status = status
}

// RecordRequest appends one HTTP exchange to the result.
func (r *CaseResult) RecordRequest(info APIRequestInfo) {
	r.APIRequests = append(r.APIRequests, info)
}

func (r *CaseResult) log(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Logs = append(r.Logs, LogEntry{Level: level, Message: msg})
	switch level {
	case "error":
		logger.Error(msg, logger.String("case", r.CaseName))
	case "warn":
		logger.Warn(msg, logger.String("case", r.CaseName))
	default:
		logger.Info(msg, logger.String("case", r.CaseName))
	}
}

// Infof captures an info-level execution log line.
func (r *CaseResult) Infof(format string, args ...any) { r.log("info", format, args...) }

// Warnf captures a warn-level execution log line.
func (r *CaseResult) Warnf(format string, args ...any) { r.log("warn", format, args...) }

// Errorf captures an error-level execution log line.
func (r *CaseResult) Errorf(format string, args ...any) { r.log("error", format, args...) }

// logSink receives execution log lines from the helpers that run inside
// a case. A nil sink is legal and discards everything.
type logSink interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type discardSink struct{}

func (discardSink) Infof(string, ...any)  {}
func (discardSink) Warnf(string, ...any)  {}
func (discardSink) Errorf(string, ...any) {}

func sinkOr(s logSink) logSink {
	if s == nil {
		return discardSink{}
	}
	return s
}
