package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

const (
	starterMarker   = "// Your code here"
	pyStarterMarker = "# Your code here"

	// maxTestCases is how many of a problem's cases are sent to the executor.
	maxTestCases = 3

	scoreStarter     = 5
	scoreNoTests     = 10
	scoreRunFailed   = 10
	scoreUnreachable = 5
	scoreAllPassed   = 95
	scoreNonePassed  = 5

	excellentThreshold = 90
	maxQualityBonus    = 5
	maxQuickScore      = 45
)

// Scorer grades a submission by running it on the remote executor and
// falling back to a static read of the code when execution gives little.
type Scorer struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewScorer(baseURL string, timeout time.Duration, log *zap.Logger) *Scorer {
	return &Scorer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type executeRequest struct {
	Code      string            `json:"code"`
	Language  string            `json:"language"`
	TestCases []domain.TestCase `json:"testCases"`
}

type executeResponse struct {
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	TestResults []struct {
		Passed bool `json:"passed"`
	} `json:"testResults"`
}

// Evaluate never returns an error: every failure of the executor turns into a
// low score instead.
func (s *Scorer) Evaluate(ctx context.Context, code string, problem domain.Problem) (int, error) {
	if strings.TrimSpace(code) == "" {
		return 0, nil
	}
	if isStarterCode(code) {
		return scoreStarter, nil
	}

	exec := s.executionScore(ctx, code, problem)
	if exec >= excellentThreshold {
		return min(exec+qualityBonus(code, problem), domain.MaxScore), nil
	}
	return min(max(exec, quickScore(code, problem)), domain.MaxScore), nil
}

func (s *Scorer) executionScore(ctx context.Context, code string, problem domain.Problem) int {
	res, err := s.execute(ctx, code, problem)
	if err != nil {
		s.log.Warn("[EVAL] Executor request failed",
			zap.String("problem", problem.ID),
			zap.Error(err))
		return scoreUnreachable
	}
	if !res.Success {
		s.log.Debug("[EVAL] Execution unsuccessful",
			zap.String("problem", problem.ID),
			zap.String("error", res.Error))
		return scoreRunFailed
	}
	if len(res.TestResults) == 0 {
		return scoreNoTests
	}

	passed := 0
	for _, r := range res.TestResults {
		if r.Passed {
			passed++
		}
	}
	return passRateScore(float64(passed) / float64(len(res.TestResults)))
}

func passRateScore(rate float64) int {
	switch {
	case rate >= 1:
		return scoreAllPassed
	case rate >= 0.8:
		return int(rate * 85)
	case rate >= 0.5:
		return int(rate * 70)
	case rate > 0:
		return int(rate * 50)
	}
	return scoreNonePassed
}

func (s *Scorer) execute(ctx context.Context, code string, problem domain.Problem) (*executeResponse, error) {
	cases := problem.TestCases
	if len(cases) > maxTestCases {
		cases = cases[:maxTestCases]
	}
	body, err := json.Marshal(executeRequest{Code: code, Language: DetectLanguage(code), TestCases: cases})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out executeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode executor response (status %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}

// Healthy reports whether the executor answers its health check.
func (s *Scorer) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// DetectLanguage guesses the submission language from a few tell-tale tokens.
// Anything unrecognised is treated as JavaScript.
func DetectLanguage(code string) string {
	switch {
	case strings.Contains(code, "def ") || strings.Contains(code, "import "):
		return "python"
	case strings.Contains(code, "public class") || strings.Contains(code, "System.out"):
		return "java"
	case strings.Contains(code, "#include") || strings.Contains(code, "cout"):
		return "cpp"
	}
	return "javascript"
}

func isStarterCode(code string) bool {
	return strings.Contains(code, starterMarker) && lineCount(code) <= 5
}

func lineCount(code string) int {
	return len(strings.Split(code, "\n"))
}

// qualityBonus rewards idiomatic solutions that already pass every test.
func qualityBonus(code string, problem domain.Problem) int {
	bonus := 0
	if strings.Contains(code, "Map") || strings.Contains(code, "Set") || strings.Contains(code, "HashMap") {
		bonus += 3
	}
	if strings.Contains(code, "sort") && (strings.Contains(code, "binary") || strings.Contains(code, "search")) {
		bonus += 2
	}
	if lineCount(code) > 10 && !strings.Contains(code, starterMarker) {
		bonus += 2
	}

	advanced := pie.Filter(problem.Keywords, func(k string) bool {
		k = strings.ToLower(k)
		return strings.Contains(k, "dynamic") || strings.Contains(k, "programming") ||
			strings.Contains(k, "optimization") || strings.Contains(k, "efficient")
	})
	bonus += min(len(advanced), 3)

	return min(bonus, maxQualityBonus)
}

// quickScore gives partial credit from the shape of the code alone.
func quickScore(code string, problem domain.Problem) int {
	if strings.Contains(code, starterMarker) || strings.Contains(code, pyStarterMarker) {
		return 8
	}

	score := 0
	hasFunction := strings.Contains(code, "function") || strings.Contains(code, "def ") || strings.Contains(code, "class")
	hasReturn := strings.Contains(code, "return")
	hasLogic := strings.Contains(code, "for") || strings.Contains(code, "while") || strings.Contains(code, "if")
	switch {
	case hasFunction && hasReturn && hasLogic:
		score += 25
	case hasFunction && hasReturn:
		score += 15
	case hasFunction:
		score += 8
	}

	lower := strings.ToLower(code)
	matches := pie.Filter(problem.Keywords, func(k string) bool {
		return strings.Contains(lower, strings.ToLower(k))
	})
	score += min(len(matches)*3, 10)

	if len(code) > 100 {
		score += 5
	}
	return min(score, maxQuickScore)
}
