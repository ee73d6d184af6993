package problem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

func TestDefaultBank(t *testing.T) {
	b, err := Default()
	require.NoError(t, err)

	st := b.Stats()
	assert.Equal(t, 9, st.Total)
	assert.Equal(t, map[string]int{"easy": 3, "medium": 3, "hard": 3}, st.ByDifficulty)
	assert.ElementsMatch(t, []string{"easy", "medium", "hard"}, b.Difficulties())

	p, err := b.ByID("two-sum")
	require.NoError(t, err)
	assert.Equal(t, "twoSum", p.FunctionName)
	assert.Len(t, p.TestCases, 3)
	assert.Contains(t, p.Templates["javascript"], "// Your code here")
	assert.Equal(t, 9, p.TestCases[0].Input["target"])

	_, err = b.ByID("nope")
	assert.ErrorIs(t, err, domain.ErrProblemNotFound)
}

func TestRandomFilters(t *testing.T) {
	b, err := Default()
	require.NoError(t, err)
	b.pick = func(n int) int { return n - 1 }

	p, err := b.Random("HARD", "")
	require.NoError(t, err)
	assert.Equal(t, "n-queens", p.ID)

	p, err = b.Random("easy", "strings")
	require.NoError(t, err)
	assert.Equal(t, "valid-parentheses", p.ID)

	p, err = b.Random("", "")
	require.NoError(t, err)
	assert.Equal(t, "n-queens", p.ID)

	_, err = b.Random("medium", "backtracking")
	assert.ErrorIs(t, err, domain.ErrProblemNotFound)
}

func TestAll(t *testing.T) {
	b, err := Default()
	require.NoError(t, err)

	assert.Len(t, b.All(""), 9)
	medium := b.All("Medium")
	require.Len(t, medium, 3)
	assert.Equal(t, "add-two-numbers", medium[0].ID)
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"not yaml":      "{{{",
		"empty":         "[]",
		"missing tests": "- {id: a, title: A, difficulty: easy, functionName: f}",
		"missing title": "- {id: a, difficulty: easy, functionName: f, testCases: [{input: {x: 1}, expected: 1}]}",
		"duplicate id": "- {id: a, title: A, difficulty: easy, functionName: f, testCases: [{input: {x: 1}, expected: 1}]}\n" +
			"- {id: a, title: B, difficulty: easy, functionName: g, testCases: [{input: {x: 1}, expected: 1}]}",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(data))
			assert.Error(t, err)
		})
	}
}
