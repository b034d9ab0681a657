package cli

import (
	"encoding/json"
	"fmt"
)

func parseValue(arg string) (json.RawMessage, error) {
	raw := json.RawMessage(arg)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: value is not valid JSON: %s", ErrUsage, arg)
	}
	return raw, nil
}

func (c *Cli) runInsert(args []string) error {
	if len(args) != 2 {
		return usage("insert <table> <json>")
	}
	value, err := parseValue(args[1])
	if err != nil {
		return err
	}

	rowID, err := c.db.Table(args[0]).Insert(value)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	c.io.Println(rowID)
	return nil
}

func (c *Cli) runUpdate(args []string) error {
	if len(args) != 3 {
		return usage("update <table> <row-id> <json>")
	}
	value, err := parseValue(args[2])
	if err != nil {
		return err
	}

	if err := c.db.Table(args[0]).Update(args[1], value); err != nil {
		return fmt.Errorf("failed to update: %w", err)
	}
	c.io.Printf("Updated %s/%s\n", args[0], args[1])
	return nil
}

func (c *Cli) runDelete(args []string) error {
	if len(args) != 2 {
		return usage("delete <table> <row-id>")
	}

	prev, err := c.db.Table(args[0]).Delete(args[1])
	if err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}
	if prev == nil {
		// надгробие всё равно записано и разойдётся по пирам
		c.io.Printf("Row %s/%s was not live, tombstone recorded\n", args[0], args[1])
		return nil
	}
	c.io.Printf("Deleted %s/%s: %s\n", args[0], args[1], prev)
	return nil
}
