package cli

import (
	"fmt"
)

func (c *Cli) runGet(args []string) error {
	if len(args) != 2 {
		return usage("get <table> <row-id>")
	}

	value, ok := c.db.Table(args[0]).Get(args[1])
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, args[0], args[1])
	}
	if _, err := c.io.Write(append(value, '\n')); err != nil {
		return fmt.Errorf("failed to write value: %w", err)
	}
	return nil
}
