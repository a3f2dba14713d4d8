/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dashboard.go
Description: HTML dashboard for fanalyzer reports. Renders a single static page with
the run totals, one card per file (detached analyzers, gaps) and every analyzer event.
*/

package reporting

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/sirupsen/logrus"
)

// DashboardGenerator writes HTML dashboards
type DashboardGenerator struct {
	outputDir string
	logger    *logrus.Logger
	templates *template.Template
}

// DashboardData is what the dashboard template renders
type DashboardData struct {
	Title  string
	Report *Report
}

// NewDashboardGenerator creates a new dashboard generator
func NewDashboardGenerator(outputDir string, logger *logrus.Logger) *DashboardGenerator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	funcs := template.FuncMap{
		"bytes":   func(n uint64) string { return humanize.IBytes(n) },
		"bytes64": func(n int64) string { return humanize.IBytes(uint64(n)) },
		"fields":  formatFields,
		"detached": func(rec core.FileRecord) string {
			return detachSummary(rec.Detached)
		},
	}
	return &DashboardGenerator{
		outputDir: outputDir,
		logger:    logger,
		templates: template.Must(template.New("dashboard").Funcs(funcs).Parse(dashboardTemplate)),
	}
}

// GenerateDashboard writes index.html for the report and returns its path
func (dg *DashboardGenerator) GenerateDashboard(data *DashboardData) (string, error) {
	if data == nil || data.Report == nil {
		return "", fmt.Errorf("no report to render")
	}
	if data.Title == "" {
		data.Title = "fanalyzer report"
	}

	if err := os.MkdirAll(dg.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outputFile := filepath.Join(dg.outputDir, "index.html")
	file, err := os.Create(outputFile)
	if err != nil {
		return "", fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	if err := dg.templates.Execute(file, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	dg.logger.Infof("Dashboard generated in: %s", dg.outputDir)
	return outputFile, nil
}
