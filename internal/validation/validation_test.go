package validation

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "simple", input: "todos"},
		{name: "with punctuation", input: "app.todo-items_v2"},
		{name: "empty", input: "", wantErr: true},
		{name: "too long", input: strings.Repeat("a", MaxTableNameLen+1), wantErr: true},
		{name: "space", input: "my table", wantErr: true},
		{name: "null byte", input: "a\x00b", wantErr: true},
		{name: "slash", input: "a/b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTableName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateRowID(t *testing.T) {
	assert.NoError(t, ValidateRowID("2Dk3dTLh8Zq1QyVgB4xNRm0aSfe"))
	assert.NoError(t, ValidateRowID("user:42"))
	assert.ErrorIs(t, ValidateRowID(""), ErrInvalidName)
	assert.ErrorIs(t, ValidateRowID(strings.Repeat("x", MaxRowIDLen+1)), ErrInvalidName)
	assert.ErrorIs(t, ValidateRowID("row\x00id"), ErrInvalidName)
}

func TestValidateDatabaseName(t *testing.T) {
	assert.NoError(t, ValidateDatabaseName("notes"))
	assert.ErrorIs(t, ValidateDatabaseName("../etc"), ErrInvalidName)
	assert.ErrorIs(t, ValidateDatabaseName(""), ErrInvalidName)
}

func TestValidatePassphrase(t *testing.T) {
	assert.NoError(t, ValidatePassphrase("correct horse battery"))
	assert.Error(t, ValidatePassphrase(""))
	assert.Error(t, ValidatePassphrase("short"))
}

type todo struct {
	Tags   []string       `json:"tags"`
	Meta   map[string]any `json:"meta,omitempty"`
	Title  string         `json:"title"`
	hidden func()
	Done   bool `json:"done"`
}

type node struct {
	Next *node `json:"next"`
	Name string
}

func TestEncodeValue_Supported(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{name: "nil", value: nil, expected: `null`},
		{name: "string", value: "привет", expected: `"привет"`},
		{name: "number", value: 42.5, expected: `42.5`},
		{name: "slice", value: []any{1, "a", true, nil}, expected: `[1,"a",true,null]`},
		{name: "map", value: map[string]any{"a": map[int]string{1: "x"}}, expected: `{"a":{"1":"x"}}`},
		{name: "struct with unexported func", value: todo{Title: "t", Tags: []string{"x"}, hidden: func() {}}, expected: `{"tags":["x"],"title":"t","done":false}`},
		{name: "raw json", value: json.RawMessage(`{"k":[1,2]}`), expected: `{"k":[1,2]}`},
		{name: "bytes", value: []byte{1, 2}, expected: `"AQI="`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeValue(tt.value)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(data))
		})
	}
}

func TestEncodeValue_CompactsRawJSON(t *testing.T) {
	data, err := EncodeValue(json.RawMessage("{ \"k\": [1, 2] }\n"))
	require.NoError(t, err)
	assert.Equal(t, `{"k":[1,2]}`, string(data))
}

func TestEncodeValue_SharedSubtreeIsNotACycle(t *testing.T) {
	shared := &node{Name: "leaf"}
	value := []*node{shared, shared}

	_, err := EncodeValue(value)
	assert.NoError(t, err)
}

func TestEncodeValue_Unsupported(t *testing.T) {
	cyclic := &node{Name: "a"}
	cyclic.Next = cyclic

	cyclicMap := map[string]any{}
	cyclicMap["self"] = cyclicMap

	cyclicSlice := []any{nil}
	cyclicSlice[0] = cyclicSlice

	tests := []struct {
		name  string
		value any
	}{
		{name: "function", value: func() {}},
		{name: "channel", value: make(chan int)},
		{name: "complex", value: complex(1, 2)},
		{name: "nested function", value: map[string]any{"f": func() {}}},
		{name: "NaN", value: math.NaN()},
		{name: "infinity", value: []float64{math.Inf(1)}},
		{name: "pointer cycle", value: cyclic},
		{name: "map cycle", value: cyclicMap},
		{name: "slice cycle", value: cyclicSlice},
		{name: "struct keys", value: map[struct{ A int }]int{{A: 1}: 1}},
		{name: "invalid raw json", value: json.RawMessage(`{`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeValue(tt.value)
			assert.ErrorIs(t, err, ErrUnsupportedValue)
		})
	}
}
