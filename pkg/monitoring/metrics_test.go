/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: metrics_test.go
Description: Tests for the Prometheus metrics collector.
*/

package monitoring

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kleascm/fanalyzer/pkg/analyzers"
	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/kleascm/fanalyzer/pkg/registry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorHooks(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mc := NewMetricsCollector(logger)

	started := time.Now()
	mc.OnFileOpened(core.FileInfo{ID: "f1", Started: started})
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.filesOpen))

	mc.OnAnalyzerAttached("f1", interfaces.TagHash)
	mc.OnAttachFailed("f1", interfaces.Tag(99), registry.ErrUnregisteredTag)
	mc.OnUndelivered("f1", 10, 20)
	mc.OnEvent(interfaces.Event{FileID: "f1", Tag: interfaces.TagHash, Name: "file_hash"})
	mc.OnAnalyzerDetached("f1", interfaces.TagHash, core.DetachGap)
	mc.OnFileClosed(core.FileInfo{
		ID:            "f1",
		SeenBytes:     100,
		MissingBytes:  20,
		OverflowBytes: 5,
		EndOfFile:     true,
		Started:       started,
		Finished:      started.Add(10 * time.Millisecond),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(mc.filesOpened))
	assert.Equal(t, 0.0, testutil.ToFloat64(mc.filesOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(mc.attached.WithLabelValues("HASH")))
	assert.Equal(t, 20.0, testutil.ToFloat64(mc.undeliveredBytes))
	assert.Equal(t, 100.0, testutil.ToFloat64(mc.seenBytes))
	assert.Equal(t, 20.0, testutil.ToFloat64(mc.missingBytes))
	assert.Equal(t, 5.0, testutil.ToFloat64(mc.overflowBytes))

	expected := `
# HELP fanalyzer_analyzers_detached_total Analyzers detached from files, by reason.
# TYPE fanalyzer_analyzers_detached_total counter
fanalyzer_analyzers_detached_total{analyzer="HASH",reason="gap"} 1
# HELP fanalyzer_attach_failures_total Analyzer attach attempts that were rejected.
# TYPE fanalyzer_attach_failures_total counter
fanalyzer_attach_failures_total{analyzer="TAG(99)"} 1
# HELP fanalyzer_events_total Events emitted by analyzers.
# TYPE fanalyzer_events_total counter
fanalyzer_events_total{analyzer="HASH",event="file_hash"} 1
# HELP fanalyzer_files_closed_total Files finished, by whether end of file was reached.
# TYPE fanalyzer_files_closed_total counter
fanalyzer_files_closed_total{eof="true"} 1
`
	err := testutil.GatherAndCompare(mc.Registry(), strings.NewReader(expected),
		"fanalyzer_analyzers_detached_total",
		"fanalyzer_attach_failures_total",
		"fanalyzer_events_total",
		"fanalyzer_files_closed_total",
	)
	assert.NoError(t, err)
	assert.Equal(t, 1, testutil.CollectAndCount(mc.fileDuration))
}

func TestMetricsCollectorEngine(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mc := NewMetricsCollector(logger)

	reg := registry.New()
	require.NoError(t, analyzers.RegisterAll(reg))

	engine := core.NewEngine(reg)
	engine.SetLogger(logger)
	engine.AddReporter(mc)
	require.NoError(t, engine.Initialize(&core.Config{
		Workers:   2,
		ChunkSize: 4,
		Analyzers: []core.AnalyzerSpec{
			{Tag: "HASH", Args: map[string]interface{}{"algorithm": "sha256"}},
		},
	}))
	defer engine.Close()

	sources := []core.Source{
		{Name: "a", Reader: strings.NewReader("abcdefgh")},
		{Name: "b", Reader: strings.NewReader("abc")},
	}
	_, err := engine.Run(context.Background(), sources)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(mc.filesOpened))
	assert.Equal(t, 0.0, testutil.ToFloat64(mc.filesOpen))
	assert.Equal(t, 11.0, testutil.ToFloat64(mc.seenBytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.attached.WithLabelValues("HASH")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.events.WithLabelValues("HASH", "file_hash")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mc.detached.WithLabelValues("HASH", "eof")))
}

func TestMetricsServer(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mc := NewMetricsCollector(logger)
	mc.OnFileOpened(core.FileInfo{ID: "f1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := mc.Start(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	assert.True(t, mc.IsRunning())

	_, err = mc.Start(ctx, "127.0.0.1:0")
	assert.Error(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "fanalyzer_files_opened_total 1")

	require.NoError(t, mc.Stop())
	assert.False(t, mc.IsRunning())
	assert.NoError(t, mc.Stop())
}
