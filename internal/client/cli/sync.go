package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/iudanet/gophmesh/internal/share"
)

const (
	// DefaultSyncWait сколько sync ждёт пиров
	DefaultSyncWait = 10 * time.Second

	pollInterval = 100 * time.Millisecond
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// runSync ждёт, пока хотя бы один пир закончит начальную синхронизацию,
// затем делает инкрементальный проход и ждёт, пока пиры заберут локальные изменения
func (c *Cli) runSync(ctx context.Context, args []string) error {
	fs := newFlagSet("sync")
	wait := fs.Duration("wait", DefaultSyncWait, "how long to wait for peers")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() != 0 {
		return usage("sync [-wait 10s]")
	}

	waitCtx, cancel := context.WithTimeout(ctx, *wait)
	defer cancel()

	if !poll(waitCtx, c.hasIdlePeer) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.io.Println("No peers online, nothing to sync.")
		return nil
	}

	var bulk share.SyncResult
	for _, p := range c.db.Peers() {
		if p.LastResult.Kind == share.KindBulk {
			bulk.Merge(p.LastResult)
		}
	}

	incremental, err := c.db.Sync(ctx)
	if err != nil && !errors.Is(err, share.ErrSyncInProgress) {
		return fmt.Errorf("failed to sync: %w", err)
	}

	poll(waitCtx, func() bool { return c.db.Stats().Unacknowledged == 0 })

	if err := c.db.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	c.io.Printf("Peers:   %d\n", c.db.PeerCount())
	c.io.Printf("Pulled:  %d change(s), %d new, %d applied\n",
		bulk.Pulled+incremental.Pulled, bulk.Added+incremental.Added, bulk.Applied+incremental.Applied)
	if n := bulk.Conflicts + incremental.Conflicts; n > 0 {
		c.io.Printf("⚠️  %d local change(s) lost to newer remote changes\n", n)
	}
	if n := bulk.Rejected + incremental.Rejected; n > 0 {
		c.io.Printf("⚠️  %d malformed change(s) rejected\n", n)
	}
	if n := c.db.Stats().Unacknowledged; n > 0 {
		c.io.Printf("%d local change(s) not yet fetched by peers\n", n)
	} else {
		c.io.Println("✓ Sync completed")
	}
	return nil
}

func (c *Cli) hasIdlePeer() bool {
	for _, p := range c.db.Peers() {
		if p.State == share.StateIdle {
			return true
		}
	}
	return false
}

// poll проверяет cond, пока она не станет истинной или не истечёт ctx
func poll(ctx context.Context, cond func() bool) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
