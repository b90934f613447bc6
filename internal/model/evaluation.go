package model

// EvaluationResult is the canonical grading record returned by the external
// code evaluator. Both score blocks are on a 0–100 scale.
type EvaluationResult struct {
	IsCorrect            bool                 `json:"is_correct"`
	Approach             string               `json:"approach"`
	Complexity           Complexity           `json:"complexity"`
	CodeQuality          CodeQuality          `json:"code_quality"`
	InterviewPerformance InterviewPerformance `json:"interview_performance"`
	Feedback             string               `json:"feedback"`
	Suggestions          []string             `json:"suggestions"`
	Behavior             Behavior             `json:"behavior"`
}

type Complexity struct {
	Time  string `json:"time"`
	Space string `json:"space"`
}

type CodeQuality struct {
	Score       int `json:"score"`
	Correctness int `json:"correctness"`
	Optimality  int `json:"optimality"`
	CleanCode   int `json:"clean_code"`
	EdgeCases   int `json:"edge_cases"`
}

type InterviewPerformance struct {
	Score            int `json:"score"`
	TimeEfficiency   int `json:"time_efficiency"`
	TestBeforeSubmit int `json:"test_before_submit"`
	NoPaste          int `json:"no_paste"`
	ThinkingRatio    int `json:"thinking_ratio"`
	HintPenalty      int `json:"hint_penalty"`
}

// Behavior carries the proctoring-style signals observed during the attempt.
type Behavior struct {
	PasteDetected   bool `json:"paste_detected"`
	RunBeforeSubmit bool `json:"run_before_submit"`
	RunCount        int  `json:"run_count"`
}
