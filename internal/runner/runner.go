package runner

import (
	"context"

	"github.com/examina/examina-backend/internal/model"
)

// Languages supported by the execution collaborator.
var SupportedLanguages = []string{"python", "javascript", "java", "c", "cpp", "go"}

// IsSupportedLanguage reports whether the executor accepts the language.
func IsSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// RunRequest is one execution of a student's source against a question's
// test cases.
type RunRequest struct {
	Language   string           `json:"language"`
	SourceCode string           `json:"source_code"`
	TestCases  []model.TestCase `json:"test_cases"`
}

// Executor is the external code execution collaborator. Implementations may
// be called once per "run" click and once per question during final
// submission.
type Executor interface {
	Execute(ctx context.Context, req RunRequest) (*model.RunResult, error)
}

// FailedRun synthesizes an all-failing result carrying the execution-error
// marker. Used when the collaborator is unreachable or returns a malformed
// result: execution failures must never block a run or a submission.
func FailedRun(testCases []model.TestCase, err error) *model.RunResult {
	msg := "execution failed"
	if err != nil {
		msg = "execution failed: " + err.Error()
	}
	results := make([]model.TestCaseResult, len(testCases))
	for i, tc := range testCases {
		results[i] = model.TestCaseResult{
			TestCaseID: tc.ID,
			IsCorrect:  false,
			Error:      msg,
		}
	}
	return &model.RunResult{
		Results: results,
		Passed:  0,
		Total:   len(testCases),
	}
}

// ExecuteOrFail runs the request and maps any error to a synthesized failing
// result instead of propagating it.
func ExecuteOrFail(ctx context.Context, exec Executor, req RunRequest) *model.RunResult {
	result, err := exec.Execute(ctx, req)
	if err != nil || result == nil {
		return FailedRun(req.TestCases, err)
	}
	return result
}
