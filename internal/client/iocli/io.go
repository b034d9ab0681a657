// Package iocli abstracts terminal interaction for the gophmesh CLI.
package iocli

//go:generate moq -out io_mock.go . IO

// IO is the terminal the CLI talks to. Write receives raw row values
// printed by "get" and "list".
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)
}
