package domain

// TestCase is one input/expected pair forwarded to the code executor.
type TestCase struct {
	Input    map[string]any `json:"input" yaml:"input"`
	Expected any            `json:"expected" yaml:"expected"`
}

type Example struct {
	Input       string `json:"input" yaml:"input"`
	Output      string `json:"output" yaml:"output"`
	Explanation string `json:"explanation,omitempty" yaml:"explanation"`
}

// Problem is the statement both players race on.
type Problem struct {
	ID           string            `json:"id" yaml:"id"`
	Title        string            `json:"title" yaml:"title"`
	Description  string            `json:"description" yaml:"description"`
	Difficulty   string            `json:"difficulty" yaml:"difficulty"`
	Category     string            `json:"category" yaml:"category"`
	FunctionName string            `json:"functionName" yaml:"functionName"`
	Keywords     []string          `json:"keywords,omitempty" yaml:"keywords"`
	Examples     []Example         `json:"examples,omitempty" yaml:"examples"`
	Constraints  []string          `json:"constraints,omitempty" yaml:"constraints"`
	Templates    map[string]string `json:"template,omitempty" yaml:"templates"`
	TestCases    []TestCase        `json:"-" yaml:"testCases"`
}

// RoomSettings are chosen by the host when a room is created.
type RoomSettings struct {
	ProblemID  string `json:"problemId,omitempty"`
	TimeLimit  int    `json:"timeLimit,omitempty"` // seconds
	Difficulty string `json:"difficulty,omitempty"`
	Category   string `json:"category,omitempty"`
	IsPrivate  bool   `json:"isPrivate"`
}
