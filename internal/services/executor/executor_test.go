package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteForwardsSourceAndReturnsRun(t *testing.T) {
	var got pistonRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(pistonResponse{
			Run: Result{Stdout: "1\n", Output: "1\n"},
		})
	}))
	defer srv.Close()

	svc := NewPistonService(srv.URL, 2*time.Second)
	res, err := svc.Execute(context.Background(), "python", "", "print(1)")
	require.NoError(t, err)

	assert.Equal(t, "python", got.Language)
	assert.Equal(t, DefaultVersion, got.Version) // empty version falls back to "*"
	require.Len(t, got.Files, 1)
	assert.Equal(t, "print(1)", got.Files[0].Content)
	assert.Equal(t, "1\n", res.Output)
}

func TestExecuteRejectsUnknownLanguage(t *testing.T) {
	svc := NewPistonService("http://localhost:0", time.Second)
	_, err := svc.Execute(context.Background(), "rust", "*", "fn main() {}")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestExecuteSurfacesApiError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"message": "runtime unknown"})
	}))
	defer srv.Close()

	svc := NewPistonService(srv.URL, 2*time.Second)
	_, err := svc.Execute(context.Background(), "java", "*", "class A {}")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecutionFailed)
	assert.Contains(t, err.Error(), "runtime unknown")
}

func TestExecuteFailsOnMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	svc := NewPistonService(srv.URL, 2*time.Second)
	_, err := svc.Execute(context.Background(), "cpp", "*", "int main() {}")
	assert.ErrorIs(t, err, ErrExecutionFailed)
}

func TestExecuteHonorsBoundedWait(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	svc := NewPistonService(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := svc.Execute(context.Background(), "javascript", "*", "while(true){}")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFallbackResultIsBroadcastable(t *testing.T) {
	res := FallbackResult(context.DeadlineExceeded)
	assert.NotEmpty(t, res.Output)
	assert.Contains(t, res.Output, "execution failed")
}

func TestSupportedLanguageSet(t *testing.T) {
	for _, lang := range []string{"javascript", "python", "java", "cpp"} {
		assert.True(t, Supported(lang), lang)
	}
	assert.False(t, Supported("brainfuck"))
	assert.False(t, Supported(""))
}
