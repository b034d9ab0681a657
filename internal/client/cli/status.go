package cli

import (
	"time"

	"github.com/iudanet/gophmesh/internal/share"
)

func (c *Cli) runStatus() error {
	c.io.Println("=== Replica Status ===")
	c.io.Println()
	c.io.Printf("Database:     %s\n", c.db.Name())
	c.io.Printf("Feed:         %s\n", c.db.Feed())
	c.io.Printf("Site:         %08x\n", c.db.Site())
	c.io.Printf("State:        %s\n", c.db.State())
	c.io.Printf("Connectivity: %s\n", c.db.Connectivity())

	stats := c.db.Stats()
	c.io.Println()
	c.io.Printf("Tables:  %d\n", stats.Tables)
	c.io.Printf("Rows:    %d\n", stats.Rows)
	c.io.Printf("Changes: %d\n", stats.Changes)
	if stats.PendingRows > 0 || stats.PendingChanges > 0 {
		c.io.Printf("Pending flush: %d row(s), %d change(s)\n", stats.PendingRows, stats.PendingChanges)
	}

	c.io.Println()
	if stats.Unacknowledged > 0 {
		c.io.Printf("⚠️  %d local change(s) not yet fetched by any peer\n", stats.Unacknowledged)
		c.io.Println("Run 'gophmesh sync' or 'gophmesh serve' to replicate them.")
	} else {
		c.io.Println("✓ All local changes replicated")
	}

	c.printPeers(c.db.Peers())
	return nil
}

func (c *Cli) printPeers(peers []share.PeerInfo) {
	if len(peers) == 0 {
		return
	}
	c.io.Println()
	c.io.Println("=== Peers ===")
	for _, p := range peers {
		last := "never"
		if !p.LastSync.IsZero() {
			last = p.LastSync.Format(time.RFC3339)
		}
		c.io.Printf("%-36s %-10s cursor=%d last_sync=%s\n", p.ID, p.State, p.Cursor, last)
	}
}
