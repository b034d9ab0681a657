package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve")
	report := fs.Duration("report", 0, "print replica counters every interval, 0 disables")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() != 0 {
		return usage("serve [-report 0]")
	}

	c.io.Printf("Serving %s on feed %s, press Ctrl+C to stop\n", c.db.Name(), c.db.Feed())

	var tick <-chan time.Time
	if *report > 0 {
		ticker := time.NewTicker(*report)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			c.io.Println("Stopping...")
			return nil
		case <-tick:
			stats := c.db.Stats()
			c.io.Printf("%s peers=%d rows=%d changes=%d unacknowledged=%d\n",
				time.Now().Format(time.TimeOnly), stats.Peers, stats.Rows, stats.Changes, stats.Unacknowledged)
		}
	}
}
