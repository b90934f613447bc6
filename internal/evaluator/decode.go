package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stemsi/algoprep-backend/internal/model"
)

// legacyResult is the flat camelCase scoring payload produced by older
// evaluator builds and still found in stored rows. It is converted to the
// canonical schema here and nowhere else.
type legacyResult struct {
	IsCorrect        bool     `json:"isCorrect"`
	Approach         string   `json:"approach"`
	TimeComplexity   string   `json:"timeComplexity"`
	SpaceComplexity  string   `json:"spaceComplexity"`
	CodeQualityScore int      `json:"codeQualityScore"`
	InterviewScore   int      `json:"interviewScore"`
	Feedback         string   `json:"feedback"`
	Suggestions      []string `json:"suggestions"`
	PasteDetected    bool     `json:"pasteDetected"`
	RanBeforeSubmit  bool     `json:"ranBeforeSubmit"`
	RunCount         int      `json:"runCount"`
	ScoreBreakdown   struct {
		Correctness      int `json:"correctness"`
		Optimality       int `json:"optimality"`
		CleanCode        int `json:"cleanCode"`
		EdgeCases        int `json:"edgeCases"`
		TimeEfficiency   int `json:"timeEfficiency"`
		TestBeforeSubmit int `json:"testBeforeSubmit"`
		NoPaste          int `json:"noPaste"`
		ThinkingRatio    int `json:"thinkingRatio"`
		HintPenalty      int `json:"hintPenalty"`
	} `json:"scoreBreakdown"`
}

func (l *legacyResult) canonical() *model.EvaluationResult {
	b := l.ScoreBreakdown
	return &model.EvaluationResult{
		IsCorrect:  l.IsCorrect,
		Approach:   l.Approach,
		Complexity: model.Complexity{Time: l.TimeComplexity, Space: l.SpaceComplexity},
		CodeQuality: model.CodeQuality{
			Score:       clampScore(l.CodeQualityScore),
			Correctness: clampScore(b.Correctness),
			Optimality:  clampScore(b.Optimality),
			CleanCode:   clampScore(b.CleanCode),
			EdgeCases:   clampScore(b.EdgeCases),
		},
		InterviewPerformance: model.InterviewPerformance{
			Score:            clampScore(l.InterviewScore),
			TimeEfficiency:   clampScore(b.TimeEfficiency),
			TestBeforeSubmit: clampScore(b.TestBeforeSubmit),
			NoPaste:          clampScore(b.NoPaste),
			ThinkingRatio:    clampScore(b.ThinkingRatio),
			HintPenalty:      clampScore(b.HintPenalty),
		},
		Feedback:    l.Feedback,
		Suggestions: l.Suggestions,
		Behavior: model.Behavior{
			PasteDetected:   l.PasteDetected,
			RunBeforeSubmit: l.RanBeforeSubmit,
			RunCount:        l.RunCount,
		},
	}
}

// legacyMarkers are keys that only the legacy payload carries.
var legacyMarkers = []string{"isCorrect", "codeQualityScore", "interviewScore", "scoreBreakdown"}

// DecodeResult parses an evaluation payload in either the canonical or the
// legacy shape. Text around the outermost JSON object is ignored.
func DecodeResult(raw []byte) (*model.EvaluationResult, error) {
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return nil, errors.New("empty evaluation payload")
	}
	if !strings.HasPrefix(body, "{") {
		body = extractJSON(body)
		if body == "" {
			return nil, errors.New("no JSON object found in evaluation payload")
		}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &top); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}

	for _, key := range legacyMarkers {
		if _, ok := top[key]; ok {
			var legacy legacyResult
			if err := json.Unmarshal([]byte(body), &legacy); err != nil {
				return nil, fmt.Errorf("decode legacy evaluation: %w", err)
			}
			return legacy.canonical(), nil
		}
	}

	if _, ok := top["is_correct"]; !ok {
		return nil, errors.New("evaluation payload has no correctness verdict")
	}

	var result model.EvaluationResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	result.CodeQuality.Score = clampScore(result.CodeQuality.Score)
	result.InterviewPerformance.Score = clampScore(result.InterviewPerformance.Score)
	return &result, nil
}

func clampScore(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

// extractJSON finds the outermost JSON object in a string.
// It handles nested braces and skips braces inside quoted strings.
func extractJSON(s string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, ch := range s {
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start != -1 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
