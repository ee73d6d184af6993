package problem

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/elliotchance/pie/v2"
	"gopkg.in/yaml.v3"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

//go:embed problems.yaml
var builtin []byte

// Bank is a read-only set of problems. It is safe for concurrent use.
type Bank struct {
	problems []domain.Problem
	byID     map[string]domain.Problem
	pick     func(n int) int
}

// Stats counts problems per difficulty.
type Stats struct {
	Total        int            `json:"total"`
	ByDifficulty map[string]int `json:"byDifficulty"`
}

// Default loads the problems compiled into the binary.
func Default() (*Bank, error) {
	return Load(builtin)
}

// Load parses a YAML list of problems.
func Load(data []byte) (*Bank, error) {
	var problems []domain.Problem
	if err := yaml.Unmarshal(data, &problems); err != nil {
		return nil, fmt.Errorf("parse problems: %w", err)
	}
	if len(problems) == 0 {
		return nil, fmt.Errorf("problem bank is empty")
	}

	b := &Bank{byID: make(map[string]domain.Problem, len(problems)), pick: rand.IntN}
	for i, p := range problems {
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("problem #%d: %w", i, err)
		}
		p.Difficulty = strings.ToLower(p.Difficulty)
		if _, dup := b.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate problem id %q", p.ID)
		}
		b.byID[p.ID] = p
		b.problems = append(b.problems, p)
	}
	return b, nil
}

func validate(p domain.Problem) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("missing id")
	case p.Title == "":
		return fmt.Errorf("%s: missing title", p.ID)
	case p.Difficulty == "":
		return fmt.Errorf("%s: missing difficulty", p.ID)
	case p.FunctionName == "":
		return fmt.Errorf("%s: missing function name", p.ID)
	case len(p.TestCases) == 0:
		return fmt.Errorf("%s: no test cases", p.ID)
	}
	return nil
}

// Random picks a problem matching difficulty and category. Empty filters
// match everything.
func (b *Bank) Random(difficulty, category string) (domain.Problem, error) {
	difficulty = strings.ToLower(strings.TrimSpace(difficulty))
	category = strings.ToLower(strings.TrimSpace(category))

	candidates := pie.Filter(b.problems, func(p domain.Problem) bool {
		return (difficulty == "" || p.Difficulty == difficulty) &&
			(category == "" || strings.ToLower(p.Category) == category)
	})
	if len(candidates) == 0 {
		return domain.Problem{}, fmt.Errorf("difficulty %q category %q: %w", difficulty, category, domain.ErrProblemNotFound)
	}
	return candidates[b.pick(len(candidates))], nil
}

func (b *Bank) ByID(id string) (domain.Problem, error) {
	p, ok := b.byID[id]
	if !ok {
		return domain.Problem{}, domain.ErrProblemNotFound
	}
	return p, nil
}

// All returns every problem, optionally restricted to one difficulty.
func (b *Bank) All(difficulty string) []domain.Problem {
	difficulty = strings.ToLower(difficulty)
	if difficulty == "" {
		return append([]domain.Problem(nil), b.problems...)
	}
	return pie.Filter(b.problems, func(p domain.Problem) bool {
		return p.Difficulty == difficulty
	})
}

func (b *Bank) Difficulties() []string {
	return pie.Unique(pie.Map(b.problems, func(p domain.Problem) string { return p.Difficulty }))
}

func (b *Bank) Stats() Stats {
	st := Stats{Total: len(b.problems), ByDifficulty: make(map[string]int)}
	for _, p := range b.problems {
		st.ByDifficulty[p.Difficulty]++
	}
	return st
}
