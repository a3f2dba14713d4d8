/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: table.go
Description: Terminal tables for fanalyzer: per-file analysis summaries and the list
of registered analyzers, rendered with go-pretty.
*/

package reporting

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/kleascm/fanalyzer/pkg/core"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/kleascm/fanalyzer/pkg/registry"
)

// newTable creates a table writer in the house style
func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Format.Footer = text.FormatDefault
	return tbl
}

// RenderSummary prints one row per file followed by engine totals
func RenderSummary(w io.Writer, records []core.FileRecord, stats core.Stats) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"File", "Size", "Seen", "Missing", "Gaps", "Events", "Analyzers"})

	for _, rec := range records {
		name := rec.Info.Name
		if name == "" {
			name = rec.Info.ID
		}
		size := "?"
		if rec.Info.TotalBytes > 0 {
			size = humanize.IBytes(rec.Info.TotalBytes)
		}
		tbl.AppendRow(table.Row{
			name,
			size,
			humanize.IBytes(rec.Info.SeenBytes),
			humanize.IBytes(rec.Info.MissingBytes),
			len(rec.Gaps),
			len(rec.Events),
			detachSummary(rec.Detached),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d files", stats.Files),
		"",
		humanize.IBytes(uint64(stats.SeenBytes)),
		humanize.IBytes(uint64(stats.MissingBytes)),
		"",
		stats.Events,
		fmt.Sprintf("%d attached, %d rejected", stats.Attached, stats.AttachFailures),
	})
	tbl.Render()
}

// RenderEvents prints every event of the given records
func RenderEvents(w io.Writer, records []core.FileRecord) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"File", "Analyzer", "Event", "Fields"})

	for _, rec := range records {
		name := rec.Info.Name
		if name == "" {
			name = rec.Info.ID
		}
		for _, ev := range rec.Events {
			tbl.AppendRow(table.Row{name, ev.Tag.String(), ev.Name, formatFields(ev.Fields)})
		}
	}
	tbl.Render()
}

// RenderAnalyzers prints the registered analyzer variants
func RenderAnalyzers(w io.Writer, entries []registry.Entry) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Tag", "Name", "Description", "Tunables"})

	for _, e := range entries {
		tbl.AppendRow(table.Row{int(e.Tag), e.Tag.String(), e.Description, e.Schema != ""})
	}
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d", len(entries))})
	tbl.Render()
}

// detachSummary lists analyzers with the reason they left, e.g. "HASH:eof MIME:stream"
func detachSummary(detached map[interfaces.Tag]core.DetachReason) string {
	tags := make([]interfaces.Tag, 0, len(detached))
	for tag := range detached {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, fmt.Sprintf("%s:%s", tag, detached[tag]))
	}
	return strings.Join(parts, " ")
}

func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprintf("%v", fields[k])
		if len(v) > 64 {
			v = v[:61] + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return strings.Join(parts, " ")
}
