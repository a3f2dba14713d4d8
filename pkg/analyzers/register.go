/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: register.go
Description: Registration of the built-in analyzers. Importing this package makes
every built-in tag available in registry.Default.
*/

package analyzers

import (
	"github.com/kleascm/fanalyzer/pkg/interfaces"
	"github.com/kleascm/fanalyzer/pkg/registry"
)

const sizeSchema = `{"type": ["integer", "string"]}`

// Entries returns the registrations of every built-in analyzer
func Entries() []registry.Entry {
	return []registry.Entry{
		{
			Tag:         interfaces.TagHash,
			Description: "Digest of the complete file content",
			New:         NewHashAnalyzer,
			Schema: `{
				"type": "object",
				"properties": {
					"algorithm": {"type": "string", "enum": ["md5", "sha1", "sha256", "MD5", "SHA1", "SHA256"]}
				},
				"additionalProperties": false
			}`,
		},
		{
			Tag:         interfaces.TagExtract,
			Description: "Write file content to disk",
			New:         NewExtractAnalyzer,
			Schema: `{
				"type": "object",
				"properties": {
					"dir": {"type": "string"},
					"filename": {"type": "string"},
					"limit": ` + sizeSchema + `,
					"compress": {"type": "boolean"}
				},
				"additionalProperties": false
			}`,
		},
		{
			Tag:         interfaces.TagDataEvent,
			Description: "Report every chunk and stream delivery as an event",
			New:         NewDataEventAnalyzer,
			Schema: `{
				"type": "object",
				"properties": {
					"chunk_event": {"type": "boolean"},
					"stream_event": {"type": "boolean"},
					"include_data": {"type": "boolean"}
				},
				"additionalProperties": false
			}`,
		},
		{
			Tag:         interfaces.TagMIME,
			Description: "Classify the beginning of the file",
			New:         NewMIMEAnalyzer,
			Schema: `{
				"type": "object",
				"properties": {
					"bof_size": {"type": ["integer", "string"], "minimum": 0, "maximum": 16777216}
				},
				"additionalProperties": false
			}`,
		},
		{
			Tag:         interfaces.TagSignature,
			Description: "Match named patterns against the start of the file",
			New:         NewSignatureAnalyzer,
			Schema: `{
				"type": "object",
				"properties": {
					"patterns": {
						"type": "object",
						"minProperties": 1,
						"additionalProperties": {"type": "string"}
					},
					"window": ` + sizeSchema + `
				},
				"required": ["patterns"],
				"additionalProperties": false
			}`,
		},
		{
			Tag:         interfaces.TagHTML,
			Description: "Summarize HTML documents",
			New:         NewHTMLAnalyzer,
			Schema: `{
				"type": "object",
				"properties": {
					"max_size": ` + sizeSchema + `
				},
				"additionalProperties": false
			}`,
		},
	}
}

// RegisterAll adds every built-in analyzer to reg
func RegisterAll(reg *registry.Registry) error {
	for _, entry := range Entries() {
		if err := reg.Register(entry); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	for _, entry := range Entries() {
		registry.Default.MustRegister(entry)
	}
}
