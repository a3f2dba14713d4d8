/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: html.go
Description: HTML analyzer for fanalyzer. Buffers a document up to a size cap and
summarizes it with goquery: title, outgoing links and scripts.
*/

package analyzers

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kleascm/fanalyzer/pkg/interfaces"
)

// EventHTMLSummary is emitted once per document
const EventHTMLSummary = "html_summary"

// DefaultHTMLMaxSize caps the buffered document
const DefaultHTMLMaxSize = 1024 * 1024

// HTMLAnalyzer summarizes HTML documents
type HTMLAnalyzer struct {
	*interfaces.Base
	doc     []byte
	limit   uint64
	partial bool
	done    bool
}

// NewHTMLAnalyzer builds an HTML analyzer. Args: max_size (size, default 1MiB).
func NewHTMLAnalyzer(args *interfaces.Args, file interfaces.File) (interfaces.Analyzer, error) {
	limit, err := args.Bytes("max_size", DefaultHTMLMaxSize)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = DefaultHTMLMaxSize
	}

	base, err := interfaces.NewBase(args, file)
	if err != nil {
		return nil, err
	}
	return &HTMLAnalyzer{Base: base, limit: limit}, nil
}

// DeliverStream buffers the document; a full buffer is summarized right away
func (h *HTMLAnalyzer) DeliverStream(data []byte) bool {
	if h.done || len(data) == 0 {
		return !h.done
	}
	room := h.limit - uint64(len(h.doc))
	if uint64(len(data)) >= room {
		if uint64(len(data)) > room {
			h.partial = true
		}
		h.doc = append(h.doc, data[:room]...)
		if h.partial {
			h.summarize()
			return false
		}
		return true
	}
	h.doc = append(h.doc, data...)
	return true
}

// Undelivered marks the summary partial
func (h *HTMLAnalyzer) Undelivered(offset, length uint64) bool {
	if length == 0 || h.done {
		return !h.done
	}
	h.partial = true
	return true
}

// EndOfFile summarizes the buffered document
func (h *HTMLAnalyzer) EndOfFile() bool {
	h.summarize()
	return false
}

func (h *HTMLAnalyzer) summarize() {
	if h.done {
		return
	}
	h.done = true
	if len(h.doc) == 0 {
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(h.doc))
	if err != nil {
		return
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})
	var scripts []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && src != "" {
			scripts = append(scripts, src)
		}
	})

	h.Emit(EventHTMLSummary, map[string]interface{}{
		"title":   strings.TrimSpace(doc.Find("title").First().Text()),
		"links":   links,
		"scripts": scripts,
		"inline":  doc.Find("script:not([src])").Length(),
		"partial": h.partial,
	})
}
