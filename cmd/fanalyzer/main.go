/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Main command-line interface for fanalyzer. Provides command-line options,
configuration management and logging controls for running file-content analyzers
over files and directories.
*/

package main

import (
	"fmt"
	"os"

	"github.com/kleascm/fanalyzer/cmd/fanalyzer/commands"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Configuration
	configFile string
	logLevel   string
	jsonLogs   bool

	// Logging configuration
	logDir      string
	logFormat   string
	logMaxFiles int
	logMaxSize  int64
	logCompress bool
)

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:   "fanalyzer",
		Short: "fanalyzer - file-content analyzers over files and captures",
		Long: `fanalyzer feeds file content to a set of pluggable analyzers (hashing, extraction,
MIME and signature detection, HTML summaries) the way a network monitor hands them
reassembled files: in chunks, possibly out of order, possibly with gaps.`,
		Version:      commands.Version,
		SilenceUsage: true,
	}

	// Add persistent flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Use JSON log format")

	// Add logging-specific flags
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Log output directory (empty logs to the console only)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "custom", "Log format (text, json, custom)")
	rootCmd.PersistentFlags().IntVar(&logMaxFiles, "log-max-files", 10, "Maximum number of log files to keep")
	rootCmd.PersistentFlags().Int64Var(&logMaxSize, "log-max-size", 100*1024*1024, "Maximum log file size in bytes")
	rootCmd.PersistentFlags().BoolVar(&logCompress, "log-compress", false, "Compress rotated log files")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("json_logs", rootCmd.PersistentFlags().Lookup("json-logs"))
	viper.BindPFlag("log_dir", rootCmd.PersistentFlags().Lookup("log-dir"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("log_max_files", rootCmd.PersistentFlags().Lookup("log-max-files"))
	viper.BindPFlag("log_max_size", rootCmd.PersistentFlags().Lookup("log-max-size"))
	viper.BindPFlag("log_compress", rootCmd.PersistentFlags().Lookup("log-compress"))

	// Add analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze <paths...>",
		Short: "Run analyzers over files and directories",
		Long: `Run the configured analyzers over every file named on the command line.
Directories are walked recursively. Analyzers come from the config file's
"analyzers" list and from --analyzer flags; HASH and MIME are used when neither
is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: commands.RunAnalyze,
	}

	analyzeCmd.Flags().StringSlice("analyzer", []string{}, "Analyzer to attach: TAG[:key=value;key=value] (repeatable)")
	analyzeCmd.Flags().Int("workers", 0, "Number of files analyzed in parallel (0 = auto-detect)")
	analyzeCmd.Flags().String("chunk-size", "64KiB", "Bytes per delivery")
	analyzeCmd.Flags().String("buffer-limit", "16MiB", "Reassembly buffer per file (0 = unlimited)")
	analyzeCmd.Flags().Bool("shuffle", false, "Deliver chunks out of order")
	analyzeCmd.Flags().Int64("seed", 0, "Shuffle seed (0 = time based)")
	analyzeCmd.Flags().Int("drop-every", 0, "Report every Nth chunk as a gap (0 = never)")
	analyzeCmd.Flags().Bool("events", false, "Print every analyzer event")
	analyzeCmd.Flags().String("report-dir", "", "Directory for the analysis report")
	analyzeCmd.Flags().String("report-format", "json", "Report format (json, yaml)")
	analyzeCmd.Flags().String("dashboard-dir", "", "Directory for the HTML dashboard")
	analyzeCmd.Flags().String("dashboard-title", "fanalyzer report", "Dashboard title")
	analyzeCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	viper.BindPFlag("analyzer", analyzeCmd.Flags().Lookup("analyzer"))
	viper.BindPFlag("workers", analyzeCmd.Flags().Lookup("workers"))
	viper.BindPFlag("chunk_size", analyzeCmd.Flags().Lookup("chunk-size"))
	viper.BindPFlag("buffer_limit", analyzeCmd.Flags().Lookup("buffer-limit"))
	viper.BindPFlag("shuffle", analyzeCmd.Flags().Lookup("shuffle"))
	viper.BindPFlag("seed", analyzeCmd.Flags().Lookup("seed"))
	viper.BindPFlag("drop_every", analyzeCmd.Flags().Lookup("drop-every"))
	viper.BindPFlag("events", analyzeCmd.Flags().Lookup("events"))
	viper.BindPFlag("report_dir", analyzeCmd.Flags().Lookup("report-dir"))
	viper.BindPFlag("report_format", analyzeCmd.Flags().Lookup("report-format"))
	viper.BindPFlag("dashboard_dir", analyzeCmd.Flags().Lookup("dashboard-dir"))
	viper.BindPFlag("dashboard_title", analyzeCmd.Flags().Lookup("dashboard-title"))
	viper.BindPFlag("metrics_addr", analyzeCmd.Flags().Lookup("metrics-addr"))

	rootCmd.AddCommand(analyzeCmd)

	// Add list-analyzers command
	listAnalyzersCmd := &cobra.Command{
		Use:   "list-analyzers",
		Short: "List registered analyzers and their tunables",
		RunE:  commands.ListAnalyzers,
	}
	listAnalyzersCmd.Flags().Bool("schemas", false, "Print the JSON schema of each analyzer's tunables")
	rootCmd.AddCommand(listAnalyzersCmd)

	// Add check command for built-in self-checks
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the registry, analyzer configuration and output directories",
		Long: `Check that every built-in analyzer is registered, that the configured analyzers
name registered tags with valid tunables, and that the log and report directories
are writable. Useful in CI before a long run.`,
		RunE: commands.PerformSelfCheck,
	})

	// Add logs command
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show statistics for the log directory",
		RunE:  commands.ShowLogs,
	}
	logsCmd.Flags().Bool("rotate", false, "Rotate oversized logs and remove old ones first")
	rootCmd.AddCommand(logsCmd)

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
