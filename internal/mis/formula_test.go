package mis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/Jayes-h/fintech-process-automation-sub001/testing"
)

func TestParsePrecedenceAndNames(t *testing.T) {
	cases := map[string]string{
		"A+10":                          "([A] + 10)",
		"1 + 2 * 3":                     "(1 + (2 * 3))",
		"(1 + 2) * 3":                   "((1 + 2) * 3)",
		"-A - -B":                       "((-[A]) - (-[B]))",
		"Gross Sales - Returns":         "([Gross Sales] - [Returns])",
		"[Cost-of-goods] / \"R&D (x)\"": "([Cost-of-goods] / [R&D (x)])",
		"a / b / c":                     "(([a] / [b]) / [c])",
		"+5":                            "5",
	}
	for src, want := range cases {
		node, err := Parse(src)
		require.NoError(t, err, src)
		assert.Equal(t, want, node.String(), src)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]int{
		"":          1,
		"A +":       4,
		"(A + B":    7,
		"A [B]":     3,
		"[unclosed": 1,
		"A * ]":     5,
		"[]":        1,
	}
	for src, pos := range cases {
		_, err := Parse(src)
		var fe *FormulaError
		require.True(t, errors.As(err, &fe), src)
		assert.Equal(t, pos, fe.Pos, src)
	}
}

func TestRefs(t *testing.T) {
	node, err := Parse("Sales - sales + [Cost] * 2")
	require.NoError(t, err)
	assert.Equal(t, []string{"Sales", "Cost"}, Refs(node))
}
