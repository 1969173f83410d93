package query

import (
	"context"

	"github.com/chendingplano/dataviewer/api/loggerutil"
	"github.com/chendingplano/dataviewer/api/metrics"
	"github.com/chendingplano/dataviewer/api/stores"
)

// FaultReporter is the operations-facing channel for data integrity faults.
// Implementations must not block the query that found the fault.
type FaultReporter interface {
	ReportFault(ctx context.Context, fault *stores.DataIntegrityFault)
}

// LogReporter writes faults to the log and counts them.
type LogReporter struct {
	logger *loggerutil.JimoLogger
}

func NewLogReporter(logger *loggerutil.JimoLogger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (r *LogReporter) ReportFault(ctx context.Context, fault *stores.DataIntegrityFault) {
	metrics.RecordIntegrityFault(string(fault.Kind))
	r.logger.Error("Data integrity fault (DVW_RPT_029)",
		"kind", fault.Kind,
		"variable_id", fault.VariableID,
		"entity_id", fault.EntityID,
		"detail", fault.Detail)
}

// Reporters fans a fault out to several reporters.
type Reporters []FaultReporter

func (rs Reporters) ReportFault(ctx context.Context, fault *stores.DataIntegrityFault) {
	for _, r := range rs {
		if r != nil {
			r.ReportFault(ctx, fault)
		}
	}
}
