package runner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/examina/examina-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCases = []model.TestCase{
	{ID: "t1", Input: "1 2", ExpectedOutput: "3"},
	{ID: "t2", Input: "5 5", ExpectedOutput: "10"},
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, 5*time.Second, zerolog.Nop())
}

func TestExecuteSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/execute", r.URL.Path)

		var req RunRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "python", req.Language)
		assert.Len(t, req.TestCases, 2)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"test_case_id": "t1", "actual_output": "3", "is_correct": true},
				{"test_case_id": "t2", "actual_output": "11", "is_correct": false},
			},
			// The client recounts; a lying passed field must not matter.
			"passed": 2,
			"total":  2,
		})
	})

	result, err := client.Execute(context.Background(), RunRequest{
		Language:   "python",
		SourceCode: "print(sum(map(int, input().split())))",
		TestCases:  testCases,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Total)
	assert.True(t, result.Results[0].IsCorrect)
	assert.False(t, result.Results[1].IsCorrect)
}

func TestExecuteNon2xxStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	result, err := client.Execute(context.Background(), RunRequest{Language: "go", TestCases: testCases})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "503")
}

func TestExecuteResultCountMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"test_case_id": "t1", "is_correct": true},
			},
			"passed": 1,
			"total":  1,
		})
	})

	result, err := client.Execute(context.Background(), RunRequest{Language: "go", TestCases: testCases})

	require.Error(t, err)
	assert.Nil(t, result)
}

func TestExecuteMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := client.Execute(context.Background(), RunRequest{Language: "go", TestCases: testCases})
	require.Error(t, err)
}

func TestFailedRunMarksEveryCase(t *testing.T) {
	result := FailedRun(testCases, errors.New("connection refused"))

	assert.Equal(t, 0, result.Passed)
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Results, 2)
	for i, r := range result.Results {
		assert.Equal(t, testCases[i].ID, r.TestCaseID)
		assert.False(t, r.IsCorrect)
		assert.Contains(t, r.Error, "execution failed")
	}
	assert.False(t, result.AllPassed())
}

type failingExecutor struct{}

func (failingExecutor) Execute(context.Context, RunRequest) (*model.RunResult, error) {
	return nil, errors.New("unreachable")
}

func TestExecuteOrFailSynthesizesOnError(t *testing.T) {
	result := ExecuteOrFail(context.Background(), failingExecutor{}, RunRequest{TestCases: testCases})

	require.NotNil(t, result)
	assert.Equal(t, 0, result.Passed)
	assert.Equal(t, 2, result.Total)
}

func TestIsSupportedLanguage(t *testing.T) {
	assert.True(t, IsSupportedLanguage("python"))
	assert.True(t, IsSupportedLanguage("go"))
	assert.False(t, IsSupportedLanguage("brainfuck"))
	assert.False(t, IsSupportedLanguage(""))
}
