package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/gyaneshwarpardhi/auditlog/internal/event"
)

// printer renders a result either as indented JSON or through a text callback.
type printer struct {
	format string
	out    io.Writer
}

func newPrinter(opts *RootOptions, out io.Writer) *printer {
	return &printer{format: opts.Format, out: out}
}

func (p *printer) print(data any, text func(io.Writer) error) error {
	if p.format == "json" {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	return text(p.out)
}

func writeEvents(w io.Writer, events []event.Event) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSEVERITY\tTYPE\tACTOR\tADDRESS\tMESSAGE")
	for _, e := range events {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Timestamp.Format(time.RFC3339), e.Severity, e.Type, e.Actor, e.SourceAddress,
			strings.ReplaceAll(e.Message, "\n", " "))
	}
	return tw.Flush()
}
