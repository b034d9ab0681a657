package iocli

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStdio(t *testing.T) {
	stdio := NewStdio()
	assert.NotNil(t, stdio)
}

func TestStdioOutput(t *testing.T) {
	var out bytes.Buffer
	stdio := newStdio(strings.NewReader(""), &out)

	stdio.Println("hello", "world")
	stdio.Printf("test %d %s\n", 1, "abc")
	n, err := stdio.Write([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	assert.Equal(t, "hello world\ntest 1 abc\n{\"a\":1}", out.String())
}

func TestReadInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr error
	}{
		{name: "one line", input: "user input\n", want: []string{"user input"}},
		{name: "two lines share buffer", input: "first\n second \n", want: []string{"first", "second"}},
		{name: "no trailing newline", input: "last", want: []string{"last"}},
		{name: "empty", input: "", want: nil, wantErr: io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			stdio := newStdio(strings.NewReader(tt.input), &out)

			for _, want := range tt.want {
				got, err := stdio.ReadInput("Prompt: ")
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			if tt.wantErr != nil {
				_, err := stdio.ReadInput("Prompt: ")
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, out.String(), "Prompt: ")
		})
	}
}

func TestReadPasswordNotTerminal(t *testing.T) {
	var out bytes.Buffer
	stdio := newStdio(strings.NewReader("secret\n"), &out)

	got, err := stdio.ReadPassword("Connection: ")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}
