// Package watch follows a submission from the CLI until it is judged.
package watch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"shodh/internal/model"
	"shodh/internal/watcher"

	"go.uber.org/zap"
)

// Options configures one watch run.
type Options struct {
	Fetcher  watcher.Fetcher
	Interval time.Duration
	// PushURL is the websocket endpoint. Empty means polling only.
	PushURL string
	Out     io.Writer
}

// Run renders every applied update of initial and returns the last record
// once it is terminal. A cancelled ctx returns the latest record with ctx's error.
func Run(ctx context.Context, opts Options, initial model.Submission) (model.Submission, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	w, err := watcher.New(watcher.Config{
		Fetcher:  opts.Fetcher,
		Interval: opts.Interval,
		OnUpdate: func(u watcher.Update) {
			fmt.Fprintf(out, "[%s] %s\n", u.Source, Format(u.Submission))
		},
		Report: func(_ context.Context, msg string, err error, _ ...zap.Field) {
			if err != nil {
				fmt.Fprintf(out, "warn: %s: %v\n", msg, err)
				return
			}
			fmt.Fprintf(out, "warn: %s\n", msg)
		},
	})
	if err != nil {
		return model.Submission{}, err
	}
	defer func() { _ = w.Close() }()

	if opts.PushURL != "" {
		if _, err := watcher.DialPush(ctx, opts.PushURL, nil, w); err != nil {
			fmt.Fprintf(out, "push channel unavailable, polling only: %v\n", err)
		}
	}

	obs, err := w.Watch(ctx, initial)
	if err != nil {
		return model.Submission{}, err
	}
	select {
	case <-obs.Done():
	case <-ctx.Done():
	}

	final, _ := w.Snapshot(initial.ID)
	if !final.IsTerminal() && ctx.Err() != nil {
		return final, ctx.Err()
	}
	return final, nil
}

// Format renders a submission as a single status line.
func Format(sub model.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%s %s", sub.ID, sub.Status)
	if !sub.IsTerminal() {
		return b.String()
	}
	if sub.ExecutionTime != nil {
		fmt.Fprintf(&b, " time=%dms", *sub.ExecutionTime)
	}
	if sub.MemoryUsed != nil {
		fmt.Fprintf(&b, " memory=%dMB", *sub.MemoryUsed)
	}
	if sub.Output != nil && *sub.Output != "" {
		fmt.Fprintf(&b, " output=%q", *sub.Output)
	}
	if sub.Error != nil && *sub.Error != "" {
		fmt.Fprintf(&b, " error=%q", *sub.Error)
	}
	return b.String()
}
