package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrom_IncludesCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	ctx := WithCorrelation(context.Background(), Correlation{RunID: "run-1", Test: "TestBlogs"})
	ctx = WithCorrelation(ctx, Correlation{SessionID: "sess-1"})
	From(ctx).Info("step_done", "step", "click")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "run-1", line["run_id"])
	require.Equal(t, "TestBlogs", line["test"])
	require.Equal(t, "sess-1", line["session_id"])
	require.Equal(t, "click", line["step"])
}

func TestRequestContextMiddleware_PropagatesTestHeaders(t *testing.T) {
	var got Correlation
	handler := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CorrelationFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/blogs", nil)
	req.Header.Set(HeaderRequestID, "sess-1-0")
	req.Header.Set(HeaderTest, "TestUnauthenticated")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "sess-1-0", got.RequestID)
	require.Equal(t, "TestUnauthenticated", got.Test)
	require.Equal(t, "sess-1-0", rec.Header().Get(HeaderRequestID))
}

func TestRequestContextMiddleware_GeneratesRequestID(t *testing.T) {
	handler := RequestContextMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Regexp(t, `^req-[0-9a-f]{32}$`, rec.Header().Get(HeaderRequestID))
}
