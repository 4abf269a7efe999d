package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"learnit-events/config"
	"learnit-events/internal/analytics"
	"learnit-events/internal/repository/memory"
	"learnit-events/internal/transport/httpdto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnalyticsServer(store *memory.Store) *Server {
	dispatcher := analytics.NewDispatcher(store, store.ProcessedEvents(), store.Aggregates(), 0, nil)
	query := analytics.NewQueryService(store.Aggregates(), store.ProcessedEvents(), 0)

	s := New(config.AppConfig{Mode: TestMode, OpsPort: "0"}, nil)
	s.SetupRoutes(nil, nil)
	s.SetupAnalyticsRoutes(query, dispatcher)
	return s
}

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) httpdto.Response[T] {
	t.Helper()
	var body httpdto.Response[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

const (
	threadCreated = `{"eventType":"thread_created","eventId":"thread_created-5-0000aaaa","payload":{"threadId":5,"courseId":3}}`
	threadViewed  = `{"eventType":"thread_viewed","eventId":"thread_viewed-5-0000bbbb","payload":{"threadId":5}}`
	otherViewed   = `{"eventType":"thread_viewed","eventId":"thread_viewed-6-0000cccc","payload":{"threadId":6}}`
)

func TestIngestRoute(t *testing.T) {
	s := newAnalyticsServer(memory.NewStore())

	rec := post(t, s, "/api/analytics/ingest", threadCreated)
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode[httpdto.IngestResult](t, rec)
	assert.True(t, body.Success)
	assert.Equal(t, "thread_created-5-0000aaaa", body.Data.EventID)
	assert.Equal(t, string(analytics.OutcomeApplied), body.Data.Outcome)

	rec = post(t, s, "/api/analytics/ingest", threadCreated)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, string(analytics.OutcomeDuplicate), decode[httpdto.IngestResult](t, rec).Data.Outcome)
}

func TestIngestRoute_RejectsNonObjectBody(t *testing.T) {
	s := newAnalyticsServer(memory.NewStore())

	rec := post(t, s, "/api/analytics/ingest", `"not an envelope"`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httpdto.CodeInvalidInput, decode[any](t, rec).Code)
}

func TestIngestRoute_StoreFailure(t *testing.T) {
	store := memory.NewStore()
	store.FailWith("ApplyDelta", errors.New("connection refused"))
	s := newAnalyticsServer(store)

	rec := post(t, s, "/api/analytics/ingest", threadViewed)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, httpdto.CodeInternal, decode[any](t, rec).Code)
}

func TestIngestBatchRoute(t *testing.T) {
	store := memory.NewStore()
	s := newAnalyticsServer(store)

	rec := post(t, s, "/api/analytics/ingest/batch", "["+threadCreated+","+threadViewed+","+threadViewed+"]")
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decode[httpdto.BatchIngestResult](t, rec)
	assert.Equal(t, 3, body.Data.Accepted)
	assert.Zero(t, body.Data.Failed)
	require.Len(t, body.Data.Results, 3)
	assert.Equal(t, []string{"applied", "applied", "duplicate"},
		[]string{body.Data.Results[0].Outcome, body.Data.Results[1].Outcome, body.Data.Results[2].Outcome})

	store.FailWith("ApplyDelta", errors.New("deadlock detected"))
	rec = post(t, s, "/api/analytics/ingest/batch", "["+otherViewed+"]")
	require.Equal(t, http.StatusAccepted, rec.Code)
	body = decode[httpdto.BatchIngestResult](t, rec)
	assert.Equal(t, 1, body.Data.Failed)
	assert.Equal(t, "failed", body.Data.Results[0].Outcome)
	assert.Contains(t, body.Data.Results[0].Error, "deadlock detected")
}

func TestThreadRoute(t *testing.T) {
	s := newAnalyticsServer(memory.NewStore())

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/analytics/threads/5").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/analytics/threads/abc").Code)

	post(t, s, "/api/analytics/ingest/batch", "["+threadCreated+","+threadViewed+"]")
	rec := get(t, s, "/api/analytics/threads/5")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[httpdto.ThreadAnalytics](t, rec)
	assert.Equal(t, int64(5), body.Data.ThreadID)
	require.NotNil(t, body.Data.CourseID)
	assert.Equal(t, int64(3), *body.Data.CourseID)
	assert.Equal(t, int64(1), body.Data.Views)
	assert.Equal(t, int64(1), body.Data.Score)
}

func TestTopThreadsRoute(t *testing.T) {
	s := newAnalyticsServer(memory.NewStore())
	post(t, s, "/api/analytics/ingest/batch", `[
		{"eventType":"thread_created","eventId":"c-1","payload":{"threadId":1,"courseId":3}},
		{"eventType":"thread_created","eventId":"c-2","payload":{"threadId":2,"courseId":3}},
		{"eventType":"comment_added","eventId":"m-1","payload":{"threadId":2,"commentId":10}}
	]`)

	rec := get(t, s, "/api/analytics/courses/3/top")
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[[]httpdto.ThreadAnalytics](t, rec).Data
	require.Len(t, top, 2)
	assert.Equal(t, []int64{2, 1}, []int64{top[0].ThreadID, top[1].ThreadID})

	rec = get(t, s, "/api/analytics/courses/3/top?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]httpdto.ThreadAnalytics](t, rec).Data, 1)

	rec = get(t, s, "/api/analytics/courses/3/top?limit=0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]httpdto.ThreadAnalytics](t, rec).Data)

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/api/analytics/courses/3/top?limit=ten").Code)
}

func TestProcessedEventRoute(t *testing.T) {
	s := newAnalyticsServer(memory.NewStore())

	rec := get(t, s, "/api/analytics/events/thread_viewed-5-0000bbbb")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[httpdto.ProcessedStatus](t, rec).Data.Processed)

	post(t, s, "/api/analytics/ingest", threadViewed)
	rec = get(t, s, "/api/analytics/events/thread_viewed-5-0000bbbb")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[httpdto.ProcessedStatus](t, rec).Data.Processed)
}
