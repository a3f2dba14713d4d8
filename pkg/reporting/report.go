/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: report.go
Description: Analysis reports for fanalyzer. Builds a report from the collected file
records and engine statistics and writes it as a timestamped, versioned JSON or YAML
file under the report directory.
*/

package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"gopkg.in/yaml.v3"
)

// Format is a report file format
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat resolves a report format name
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Report is everything known about one analysis run
type Report struct {
	Version     string            `json:"version" yaml:"version"`
	GeneratedAt time.Time         `json:"generated_at" yaml:"generated_at"`
	Stats       core.Stats        `json:"stats" yaml:"stats"`
	Files       []core.FileRecord `json:"files" yaml:"files"`
	Failures    []Failure         `json:"attach_failures,omitempty" yaml:"attach_failures,omitempty"`
}

// Failure is a rejected analyzer attachment
type Failure struct {
	FileID   string         `json:"file_id" yaml:"file_id"`
	Analyzer interfaces.Tag `json:"analyzer" yaml:"analyzer"`
	Error    string         `json:"error" yaml:"error"`
}

// NewReport builds a report from what the collector saw
func NewReport(version string, stats core.Stats, collector *core.CollectingReporter) *Report {
	report := &Report{
		Version:     version,
		GeneratedAt: time.Now(),
		Stats:       stats,
		Files:       collector.Records(),
	}
	for _, f := range collector.Failures() {
		failure := Failure{FileID: f.FileID, Analyzer: f.Tag}
		if f.Err != nil {
			failure.Error = f.Err.Error()
		}
		report.Failures = append(report.Failures, failure)
	}
	return report
}

// Marshal encodes the report in the given format
func (r *Report) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	case FormatYAML:
		return yaml.Marshal(r)
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// WriteReport writes a report to dir with timestamp, name and version in the file name
func WriteReport(dir, name string, format Format, report *Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	// Generate filename: 2024-06-11_01-30-00_analysis_v1.0.0.json
	timestamp := report.GeneratedAt.Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_%s_v%s.%s", timestamp, name, report.Version, format)
	filePath := filepath.Join(dir, filename)

	data, err := report.Marshal(format)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return filePath, nil
}
