/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utilities.go
Description: Utility commands for fanalyzer. Provides list-analyzers, the
configuration self-check and log directory statistics.
*/

package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/kleascm/fanalyzer/pkg/logging"
	"github.com/kleascm/fanalyzer/pkg/registry"
	"github.com/kleascm/fanalyzer/pkg/reporting"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ListAnalyzers lists every registered analyzer variant
func ListAnalyzers(cmd *cobra.Command, args []string) error {
	fmt.Println("🔬 fanalyzer - Available Analyzers")
	fmt.Println("==================================")
	fmt.Println()

	entries := registry.Default.Entries()
	reporting.RenderAnalyzers(os.Stdout, entries)

	if schemas, _ := cmd.Flags().GetBool("schemas"); schemas {
		for _, e := range entries {
			if e.Schema == "" {
				continue
			}
			fmt.Printf("\n%s tunables:\n%s\n", e.Tag, e.Schema)
		}
	}

	fmt.Println()
	fmt.Println("✨ Use --analyzer TAG:key=value;key=value to attach an analyzer")
	return nil
}

// PerformSelfCheck validates the registry, the configured analyzers and output directories
func PerformSelfCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("🔍 fanalyzer - Configuration Self-Check")
	fmt.Println("=======================================")
	fmt.Println()

	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	checks := []struct {
		name     string
		function func() error
	}{
		{"Analyzer Registry", checkRegistry},
		{"Analyzer Configuration", checkAnalyzerConfiguration},
		{"Engine Configuration", checkEngineConfiguration},
		{"Log Directory", func() error { return checkWritable(viper.GetString("log_dir")) }},
		{"Report Directory", func() error { return checkWritable(viper.GetString("report_dir")) }},
	}

	passed := 0
	total := len(checks)

	for _, check := range checks {
		fmt.Printf("🔍 %s... ", check.name)
		if err := check.function(); err != nil {
			color.New(color.FgRed).Fprintf(os.Stdout, "FAILED: %v\n", err)
		} else {
			color.New(color.FgGreen).Fprintln(os.Stdout, "PASSED")
			passed++
		}
	}

	fmt.Println()
	fmt.Printf("📊 Results: %d/%d checks passed\n", passed, total)

	if passed == total {
		color.New(color.FgGreen).Fprintln(os.Stdout, "✨ All checks passed! Ready to analyze.")
		return nil
	}
	color.New(color.FgYellow).Fprintln(os.Stdout, "⚠️  Some checks failed. Please address the issues before analyzing.")
	return fmt.Errorf("%d/%d checks failed", total-passed, total)
}

// checkRegistry verifies every built-in tag has an instantiator
func checkRegistry() error {
	var missing []string
	for _, tag := range interfaces.Tags() {
		if _, ok := registry.Default.Lookup(tag); !ok {
			missing = append(missing, tag.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no instantiator for %v", missing)
	}
	return nil
}

// checkAnalyzerConfiguration validates every configured analyzer against its schema
func checkAnalyzerConfiguration() error {
	specs, err := loadAnalyzerSpecs()
	if err != nil {
		return err
	}

	var errs []error
	for _, spec := range specs {
		tag, err := interfaces.ParseTag(spec.Tag)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		args := interfaces.NewArgs(tag, spec.Args)
		if err := registry.Default.Validate(args); err != nil {
			errs = append(errs, err)
		}
		args.Unref()
	}
	return errors.Join(errs...)
}

// checkEngineConfiguration validates sizes and worker settings
func checkEngineConfiguration() error {
	config, err := createEngineConfig()
	if err != nil {
		return err
	}
	if config.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if config.DropEvery < 0 {
		return fmt.Errorf("drop_every must not be negative")
	}
	return nil
}

// checkWritable verifies dir can be created and written; an unset dir passes
func checkWritable(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	testFile := filepath.Join(dir, ".fanalyzer_test_write")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		return fmt.Errorf("cannot write to %s: %w", dir, err)
	}
	os.Remove(testFile)
	return nil
}

// ShowLogs prints statistics and an activity summary of the log directory
func ShowLogs(cmd *cobra.Command, args []string) error {
	if err := LoadConfig(); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logDir := viper.GetString("log_dir")
	if logDir == "" {
		logDir = logging.DefaultLoggerConfig().OutputDir
	}
	manager := logging.NewLogManager(
		logDir,
		viper.GetInt("log_max_files"),
		viper.GetInt64("log_max_size"),
		viper.GetBool("log_compress"),
	)

	if rotate, _ := cmd.Flags().GetBool("rotate"); rotate {
		if err := manager.RotateLogs(); err != nil {
			return err
		}
		if err := manager.CleanupOldLogs(); err != nil {
			return err
		}
		fmt.Printf("♻️  Rotated %d log files\n", manager.Rotations())
	}

	stats, err := manager.GetLogStats()
	if err != nil {
		return err
	}

	fmt.Printf("📁 Log directory: %s\n", logDir)
	fmt.Printf("   Files: %d (%d rotated, %d compressed)\n", stats.TotalFiles, stats.RotatedFiles, stats.CompressedFiles)
	fmt.Printf("   Size: %s\n", humanize.IBytes(uint64(stats.TotalSize)))
	if stats.TotalFiles > 0 {
		fmt.Printf("   Newest: %s\n", humanize.Time(stats.NewestFile))
	}
	fmt.Println()

	analysis, err := logging.NewLogAnalyzer(logDir).AnalyzeLogs()
	if err != nil {
		return err
	}
	fmt.Println(analysis.GetLogSummary())
	return nil
}
