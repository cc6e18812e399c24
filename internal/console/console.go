// Package console is the process-wide print sink used by task bodies and the
// demo driver. Every line is written under one mutex so concurrent tasks
// never interleave output.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"tasktable/internal/task/table"
)

type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

var std = New(os.Stdout)

// Default returns the stdout printer.
func Default() *Printer { return std }

func New(w io.Writer) *Printer {
	if w == nil {
		w = io.Discard
	}
	return &Printer{w: w}
}

// Println writes msg followed by a newline as one write.
func (p *Printer) Println(msg string) {
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, msg)
}

func (p *Printer) Printf(format string, args ...any) {
	p.Println(fmt.Sprintf(format, args...))
}

// SampleTask returns a body that announces itself and then works for work.
func SampleTask(p *Printer, message string, work time.Duration) table.Func {
	if p == nil {
		p = std
	}
	prefix := "Executing Periodic task,"
	if m := strings.TrimSpace(message); m != "" {
		prefix += " " + m
	}
	return func(ctx context.Context, id table.Identity) {
		p.Printf("%s Task Info: %s", prefix, id)
		if work <= 0 {
			return
		}
		t := time.NewTimer(work)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}
