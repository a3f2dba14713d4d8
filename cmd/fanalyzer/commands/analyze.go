/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: analyze.go
Description: Analyze command for fanalyzer. Runs the configured analyzers over files
and directories, prints a summary table and optionally writes a report, an HTML
dashboard and Prometheus metrics.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/logging"
	"github.com/kleascm/fanalyzer/pkg/monitoring"
	"github.com/kleascm/fanalyzer/pkg/registry"
	"github.com/kleascm/fanalyzer/pkg/reporting"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	_ "github.com/kleascm/fanalyzer/pkg/analyzers"
)

// Version is stamped into reports
var Version = "1.0.0"

// RunAnalyze analyzes every file named on the command line
func RunAnalyze(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := SetupLogging()
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logger.Close()

	config, err := createEngineConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sources, readers, err := collectSources(args)
	if err != nil {
		return err
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\n🛑 Received shutdown signal, stopping analysis...")
			cancel()
		case <-ctx.Done():
		}
	}()

	collector := core.NewCollectingReporter()
	engine := core.NewEngine(registry.Default)
	engine.SetLogger(logger.GetLogger())
	engine.AddReporter(collector)
	engine.AddReporter(logger)

	if addr := viper.GetString("metrics_addr"); addr != "" {
		metrics := monitoring.NewMetricsCollector(logger.GetLogger())
		if _, err := metrics.Start(ctx, addr); err != nil {
			return err
		}
		defer metrics.Stop()
		engine.AddReporter(metrics)
	}

	if err := engine.Initialize(config); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close()

	_, runErr := engine.Run(ctx, sources)

	stats := engine.GetStats()
	records := collector.Records()
	logger.LogStats(stats)

	fmt.Println()
	reporting.RenderSummary(os.Stdout, records, stats)
	if viper.GetBool("events") {
		fmt.Println()
		reporting.RenderEvents(os.Stdout, records)
	}

	if err := writeOutputs(logger, stats, collector); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("analysis incomplete: %w", runErr)
	}
	return nil
}

// writeOutputs writes the report file and dashboard when asked for
func writeOutputs(logger *logging.Logger, stats core.Stats, collector *core.CollectingReporter) error {
	reportDir := viper.GetString("report_dir")
	dashboardDir := viper.GetString("dashboard_dir")
	if reportDir == "" && dashboardDir == "" {
		return nil
	}

	report := reporting.NewReport(Version, stats, collector)

	if reportDir != "" {
		format, err := reporting.ParseFormat(viper.GetString("report_format"))
		if err != nil {
			return err
		}
		path, err := reporting.WriteReport(reportDir, "analysis", format, report)
		if err != nil {
			return err
		}
		fmt.Printf("📄 Report written to %s\n", path)
	}

	if dashboardDir != "" {
		dg := reporting.NewDashboardGenerator(dashboardDir, logger.GetLogger())
		path, err := dg.GenerateDashboard(&reporting.DashboardData{
			Title:  viper.GetString("dashboard_title"),
			Report: report,
		})
		if err != nil {
			return fmt.Errorf("failed to generate dashboard: %w", err)
		}
		fmt.Printf("📊 Dashboard written to %s\n", path)
	}

	return nil
}
