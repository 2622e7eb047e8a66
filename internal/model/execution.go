package model

// TestCaseResult is the outcome of running one test case against the
// student's source. Error carries the execution-error marker when the
// collaborator failed; such results are always marked incorrect.
type TestCaseResult struct {
	TestCaseID   string `json:"test_case_id"`
	ActualOutput string `json:"actual_output,omitempty"`
	IsCorrect    bool   `json:"is_correct"`
	Error        string `json:"error,omitempty"`
}

// RunResult aggregates one execution of a question's source against all of
// its test cases.
type RunResult struct {
	Results []TestCaseResult `json:"results"`
	Passed  int              `json:"passed"`
	Total   int              `json:"total"`
}

// AllPassed reports whether every test case passed on this run.
func (r *RunResult) AllPassed() bool {
	return r.Total > 0 && r.Passed == r.Total
}
