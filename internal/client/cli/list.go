package cli

import (
	"encoding/json"
	"fmt"
)

func (c *Cli) runList(args []string) error {
	switch len(args) {
	case 0:
		return c.listTables()
	case 1:
		return c.listRows(args[0])
	default:
		return usage("list [table]")
	}
}

func (c *Cli) listTables() error {
	names := c.db.Tables()
	if len(names) == 0 {
		c.io.Println("No tables found.")
		return nil
	}

	c.io.Println("=== Tables ===")
	for _, name := range names {
		c.io.Printf("%-24s %d row(s)\n", name, c.db.Table(name).Size())
	}
	return nil
}

func (c *Cli) listRows(table string) error {
	t := c.db.Table(table)
	if t.Size() == 0 {
		c.io.Printf("No rows in %s.\n", table)
		return nil
	}

	var err error
	t.ForEach(func(rowID string, value json.RawMessage) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(c.io, "%s\t%s\n", rowID, value)
	})
	if err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}
