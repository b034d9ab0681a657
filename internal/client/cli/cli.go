// Package cli implements the commands of the gophmesh peer binary on top of
// an open database.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/gophmesh/internal/client/iocli"
	"github.com/iudanet/gophmesh/internal/db"
)

var (
	// ErrUsage означает неверные аргументы команды
	ErrUsage = errors.New("invalid usage")

	// ErrUnknownCommand is returned by Run for commands it does not know
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotFound is returned by get for rows that are not live
	ErrNotFound = errors.New("row not found")
)

// Cli runs commands against one database
type Cli struct {
	io iocli.IO
	db *db.DB
}

func New(io iocli.IO, database *db.DB) *Cli {
	return &Cli{
		io: io,
		db: database,
	}
}

// NeedsDB reports whether command works on an open database
func NeedsDB(command string) bool {
	switch command {
	case "new", "help":
		return false
	}
	return true
}

// NeedsNetwork reports whether command connects to the tracker.
// Остальные команды работают офлайн и завершаются сразу
func NeedsNetwork(command string) bool {
	return command == "sync" || command == "serve"
}

// Run executes command with its arguments (without the command name)
func (c *Cli) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "insert":
		return c.runInsert(args)
	case "update":
		return c.runUpdate(args)
	case "delete":
		return c.runDelete(args)
	case "get":
		return c.runGet(args)
	case "list":
		return c.runList(args)
	case "status":
		return c.runStatus()
	case "sync":
		return c.runSync(ctx, args)
	case "serve":
		return c.runServe(ctx, args)
	case "new":
		return RunNew(c.io)
	case "help":
		PrintUsage(c.io)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
}

func usage(format string) error {
	return fmt.Errorf("%w: usage: gophmesh %s", ErrUsage, format)
}

// PrintUsage prints the command reference
func PrintUsage(io iocli.IO) {
	io.Println("gophmesh - peer-to-peer replicated database")
	io.Println()
	io.Println("Usage:")
	io.Println("  gophmesh [flags] <command> [arguments]")
	io.Println()
	io.Println("Commands:")
	io.Println("  new                               Generate a new connection string")
	io.Println("  insert <table> <json>             Insert a row, prints the new row id")
	io.Println("  update <table> <row-id> <json>    Replace (or create) a row")
	io.Println("  delete <table> <row-id>           Delete a row")
	io.Println("  get <table> <row-id>              Print the value of a row")
	io.Println("  list [table]                      List tables, or rows of a table")
	io.Println("  status                            Show replica state and counters")
	io.Println("  sync [-wait 10s]                  Connect to peers and pull their changes")
	io.Println("  serve [-report 0]                 Stay online and replicate until interrupted")
	io.Println()
	io.Println("Flags:")
	io.Println("  -config <path>       YAML config file")
	io.Println("  -name <name>         Database name")
	io.Println("  -data-dir <dir>      Directory of database files")
	io.Println("  -backend <bolt|sqlite>")
	io.Println("  -tracker <url>       Tracker relay URL")
	io.Println("  -connection <str>    Connection string")
	io.Println("  -connection-file <path>")
	io.Println("  -version             Show version information")
	io.Println()
	io.Println("Connection string priority:")
	io.Println("  1. GOPHMESH_CONNECTION environment variable")
	io.Println("  2. -connection-file")
	io.Println("  3. -connection")
	io.Println("  4. Interactive prompt")
}
