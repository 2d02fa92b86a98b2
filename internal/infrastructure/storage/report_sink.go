// Package storage publishes migration reports to local disk and S3-compatible
// object storage.
package storage

import (
	"path"

	"github.com/erp/migrator/internal/domain/migration"
)

const (
	reportObjectName  = "report.json"
	summaryObjectName = "summary.txt"
)

type reportObject struct {
	name        string
	contentType string
	body        []byte
}

// renderReport produces the objects a report is published as: the full JSON
// report and the human-readable summary.
func renderReport(report *migration.Report) ([]reportObject, error) {
	data, err := report.JSON()
	if err != nil {
		return nil, err
	}
	return []reportObject{
		{name: reportObjectName, contentType: "application/json", body: data},
		{name: summaryObjectName, contentType: "text/plain; charset=utf-8", body: []byte(report.Summary())},
	}, nil
}

func runDirectory(report *migration.Report) string {
	if report.RunID == "" {
		return "unnamed"
	}
	return report.RunID
}

// ReportKey returns the object key of a run's JSON report under prefix.
func ReportKey(prefix, runID string) string {
	return path.Join(prefix, runID, reportObjectName)
}
