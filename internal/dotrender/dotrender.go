// Package dotrender renders a Stream's graph as Graphviz dot source: a
// directed graph with one cluster per Stream, edges labelled
// `fromPort -> toPort`, and node labels that
// additionally carry each port's max-write, threshold, and read-promise
// when rendered in detail mode.
//
// Uses klauspost/compress/gzip (a drop-in, faster reimplementation of
// the standard library's gzip codec) for the optional compressed
// writer, the same library the rest of the module already depends on
// for its Gzip* I/O helpers.
package dotrender

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/quickstream/quickstream/internal/filter"
	"github.com/quickstream/quickstream/internal/graph"
)

// Detail controls how much per-port information node labels carry.
type Detail int

const (
	// Brief renders just the filter name per node.
	Brief Detail = iota
	// Full additionally renders each port's max-write, threshold, and
	// read-promise.
	Full
)

// StreamGraph names a graph so multiple Streams can be rendered into
// distinct clusters within one dot document.
type StreamGraph struct {
	Name string
	G    *graph.Graph
}

// Write renders one or more Streams' graphs as a single dot document.
func Write(w io.Writer, streams []StreamGraph, detail Detail) error {
	if _, err := fmt.Fprintln(w, "digraph quickstream {"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "  rankdir=LR;"); err != nil {
		return err
	}
	for si, sg := range streams {
		if err := writeCluster(w, si, sg, detail); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// WriteGzip renders the same document as Write, gzip-compressed.
func WriteGzip(w io.Writer, streams []StreamGraph, detail Detail) error {
	gz := gzip.NewWriter(w)
	if err := Write(gz, streams, detail); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}

func writeCluster(w io.Writer, index int, sg StreamGraph, detail Detail) error {
	if _, err := fmt.Fprintf(w, "  subgraph cluster_%d {\n", index); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "    label=%q;\n", sg.Name); err != nil {
		return err
	}

	for fi, f := range sg.G.Filters {
		label := nodeLabel(f, detail)
		if _, err := fmt.Fprintf(w, "    %s [label=%q];\n", nodeID(index, fi), label); err != nil {
			return err
		}
	}

	for _, c := range sg.G.Connections {
		fromPort := c.FromPort
		toPort := c.ToPort
		edgeLabel := fmt.Sprintf("%d -> %d", fromPort, toPort)
		if _, err := fmt.Fprintf(w, "    %s -> %s [label=%q];\n",
			nodeID(index, c.FromFilter), nodeID(index, c.ToFilter), edgeLabel); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintln(w, "  }")
	return err
}

func nodeID(streamIdx, filterIdx int) string {
	return fmt.Sprintf("s%d_f%d", streamIdx, filterIdx)
}

func nodeLabel(f *filter.Record, detail Detail) string {
	if detail == Brief {
		return f.Name
	}

	var b strings.Builder
	b.WriteString(f.Name)
	for i, out := range f.Outputs {
		if out == nil {
			continue
		}
		fmt.Fprintf(&b, "\\nout[%d] maxWrite=%d", i, out.MaxWrite)
	}
	for i, r := range f.Readers {
		if r == nil {
			continue
		}
		fmt.Fprintf(&b, "\\nin[%d] threshold=%d readPromise=%d", i, r.Threshold, r.ReadPromise)
	}
	return b.String()
}
