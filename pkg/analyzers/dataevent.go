/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: dataevent.go
Description: DATA_EVENT analyzer for fanalyzer. Turns every chunk and/or every stream
delivery into an event so that consumers outside the process can follow data as it
arrives.
*/

package analyzers

import (
	"fmt"

	"github.com/kleascm/fanalyzer/pkg/interfaces"
)

const (
	// EventFileChunk is emitted per chunk delivery
	EventFileChunk = "file_chunk"
	// EventFileStream is emitted per stream delivery
	EventFileStream = "file_stream"
)

// DataEventAnalyzer forwards deliveries as events
type DataEventAnalyzer struct {
	*interfaces.Base
	chunks  bool
	streams bool
	data    bool
}

// NewDataEventAnalyzer builds a DATA_EVENT analyzer.
// Args: chunk_event, stream_event (bool, both default true), include_data (bool).
func NewDataEventAnalyzer(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error) {
	chunks := args.Bool("chunk_event", true)
	streams := args.Bool("stream_event", true)
	if !chunks && !streams {
		return nil, fmt.Errorf("data event analyzer needs chunk_event or stream_event")
	}

	base, err := interfaces.NewBase(args, file)
	if err != nil {
		return nil, err
	}
	return &DataEventAnalyzer{
		Base:    base,
		chunks:  chunks,
		streams: streams,
		data:    args.Bool("include_data", false),
	}, nil
}

// DeliverChunk emits a chunk event
func (d *DataEventAnalyzer) DeliverChunk(data []byte, offset uint64) bool {
	if !d.chunks || len(data) == 0 {
		return true
	}
	fields := map[string]interface{}{
		"offset": offset,
		"length": len(data),
	}
	if d.data {
		fields["data"] = string(data)
	}
	d.Emit(EventFileChunk, fields)
	return true
}

// DeliverStream emits a stream event
func (d *DataEventAnalyzer) DeliverStream(data []byte) bool {
	if !d.streams || len(data) == 0 {
		return true
	}
	fields := map[string]interface{}{
		"length": len(data),
	}
	if d.data {
		fields["data"] = string(data)
	}
	d.Emit(EventFileStream, fields)
	return true
}
