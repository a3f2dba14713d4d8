/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: utils.go
Description: Shared utilities for the fanalyzer commands. Provides configuration
loading, logging setup, analyzer spec parsing and input discovery used across all
command implementations.
*/

package commands

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/logging"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from files and environment
func LoadConfig() error {
	// Set config file if specified
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("FANALYZER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	return nil
}

// SetupLogging creates the logger described by the log_* settings
func SetupLogging() (*logging.Logger, error) {
	config := logging.DefaultLoggerConfig()
	config.Level = logging.LogLevel(viper.GetString("log_level"))
	config.Format = logging.LogFormat(viper.GetString("log_format"))
	config.OutputDir = viper.GetString("log_dir")
	config.MaxFiles = viper.GetInt("log_max_files")
	config.MaxSize = viper.GetInt64("log_max_size")
	config.Compress = viper.GetBool("log_compress")
	config.Console = os.Stderr

	if viper.GetBool("json_logs") {
		config.Format = logging.LogFormatJSON
	}

	logger, err := logging.NewLogger(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// createEngineConfig builds the engine configuration from viper settings
func createEngineConfig() (*core.Config, error) {
	config := core.DefaultConfig()
	config.Workers = viper.GetInt("workers")
	config.Shuffle = viper.GetBool("shuffle")
	config.Seed = viper.GetInt64("seed")
	config.DropEvery = viper.GetInt("drop_every")
	config.LogLevel = viper.GetString("log_level")

	if s := viper.GetString("chunk_size"); s != "" {
		size, err := humanize.ParseBytes(s)
		if err != nil {
			return nil, fmt.Errorf("invalid chunk size %q: %w", s, err)
		}
		if size == 0 {
			return nil, fmt.Errorf("chunk size must be positive")
		}
		config.ChunkSize = size
	}
	if s := viper.GetString("buffer_limit"); s != "" {
		size, err := humanize.ParseBytes(s)
		if err != nil {
			return nil, fmt.Errorf("invalid buffer limit %q: %w", s, err)
		}
		config.BufferLimit = size
	}

	specs, err := loadAnalyzerSpecs()
	if err != nil {
		return nil, err
	}
	config.Analyzers = specs

	return config, nil
}

// loadAnalyzerSpecs merges analyzers from the config file with --analyzer flags.
// With neither, HASH and MIME are used.
func loadAnalyzerSpecs() ([]core.AnalyzerSpec, error) {
	var specs []core.AnalyzerSpec
	if viper.IsSet("analyzers") {
		if err := viper.UnmarshalKey("analyzers", &specs); err != nil {
			return nil, fmt.Errorf("invalid analyzers configuration: %w", err)
		}
	}

	for _, flag := range viper.GetStringSlice("analyzer") {
		spec, err := parseAnalyzerSpec(flag)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	if len(specs) == 0 {
		specs = []core.AnalyzerSpec{{Tag: "HASH"}, {Tag: "MIME"}}
	}
	return specs, nil
}

// parseAnalyzerSpec parses TAG[:key=value[;key=value...]].
// A dotted key sets an entry of a map tunable: signature:patterns.zip=PK\x03\x04
func parseAnalyzerSpec(s string) (core.AnalyzerSpec, error) {
	tag, rest, _ := strings.Cut(s, ":")
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return core.AnalyzerSpec{}, fmt.Errorf("invalid analyzer %q: missing tag", s)
	}

	spec := core.AnalyzerSpec{Tag: tag, Args: make(map[string]interface{})}
	if strings.TrimSpace(rest) == "" {
		return spec, nil
	}

	for _, pair := range strings.Split(rest, ";") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return core.AnalyzerSpec{}, fmt.Errorf("invalid analyzer %q: expected key=value, got %q", s, pair)
		}

		if parent, child, nested := strings.Cut(key, "."); nested {
			m, _ := spec.Args[parent].(map[string]interface{})
			if m == nil {
				m = make(map[string]interface{})
				spec.Args[parent] = m
			}
			m[child] = value
			continue
		}
		spec.Args[key] = parseValue(value)
	}
	return spec, nil
}

// parseValue turns flag text into an integer, a boolean or leaves it a string
func parseValue(s string) interface{} {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// fileReader opens its file on first read and closes it at end of file,
// so large inputs do not hold a descriptor each while queued
type fileReader struct {
	path string
	file *os.File
	done bool
}

func (r *fileReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if r.file == nil {
		f, err := os.Open(r.path)
		if err != nil {
			return 0, err
		}
		r.file = f
	}
	n, err := r.file.Read(p)
	if err == io.EOF {
		r.Close()
	}
	return n, err
}

// Close releases the file if it is still open
func (r *fileReader) Close() error {
	r.done = true
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// collectSources resolves paths into sources; directories are walked recursively
func collectSources(paths []string) ([]core.Source, []*fileReader, error) {
	var sources []core.Source
	var readers []*fileReader

	add := func(path, name string, size int64) {
		reader := &fileReader{path: path}
		readers = append(readers, reader)
		sources = append(sources, core.Source{
			Name:   name,
			Origin: path,
			Size:   uint64(size),
			Reader: reader,
		})
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot access %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root, filepath.Base(root), info.Size())
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			name, err := filepath.Rel(root, path)
			if err != nil {
				name = path
			}
			add(path, name, info.Size())
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	if len(sources) == 0 {
		return nil, nil, fmt.Errorf("no files to analyze")
	}
	return sources, readers, nil
}
