package ui

import (
	"fmt"
	"io"

	"github.com/bamsammich/aio/internal/stats"
)

// plainPresenter prints one line per failed or skipped op, and per batch
// lifecycle step when verbose.
type plainPresenter struct {
	w       io.Writer
	stats   stats.Reader
	verbose bool
}

func (p *plainPresenter) Run(events <-chan Event) error {
	for ev := range events {
		p.handleEvent(ev)
	}
	return nil
}

func (p *plainPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case BatchSubmitted:
		if p.verbose {
			fmt.Fprintf(p.w, "batch %d  submitted  %d ops\n", ev.Ticket, ev.Size)
		}
	case BatchDispatched:
		if p.verbose {
			fmt.Fprintf(p.w, "batch %d  dispatched\n", ev.Ticket)
		}
	case OpFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "batch %d  %s  %s\n", ev.Ticket, ev.Path, errMsg)
	case OpSkipped:
		fmt.Fprintf(p.w, "batch %d  skipped  %v\n", ev.Ticket, ev.Error)
	case BatchCompleted:
		if p.verbose {
			fmt.Fprintf(p.w, "batch %d  done  %s\n", ev.Ticket, FormatBytes(ev.Size))
		}
	}
}

func (p *plainPresenter) Summary() string {
	if p.stats == nil {
		return ""
	}
	return CompletionSummary(p.stats.Snapshot())
}
