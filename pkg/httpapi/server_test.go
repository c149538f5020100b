package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexcolls/oriane-sub000/pkg/concurrency"
	"github.com/alexcolls/oriane-sub000/pkg/job"
	"github.com/alexcolls/oriane-sub000/pkg/worker"
)

type fakeDispatcher struct {
	runCount int
}

func (f *fakeDispatcher) Run(ctx context.Context, jobID uuid.UUID, items []worker.Item) error {
	f.runCount++
	return nil
}

func newTestServer(maxVideos int) (*Server, *job.Store, *concurrency.Pool) {
	store := job.NewStore()
	pool := concurrency.NewPool(2)
	pool.Start()
	logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.ErrorLevel})
	s := New(store, pool, &fakeDispatcher{}, logger, maxVideos)
	return s, store, pool
}

func TestHandleProcess_ValidRequestReturns202(t *testing.T) {
	s, _, pool := newTestServer(10)
	defer pool.Stop(time.Second)

	body := `{"items":[{"platform":"instagram","code":"A"},{"platform":"instagram","code":"B"}]}`
	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var resp processResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.JobID)
	assert.NoError(t, err)
}

func TestHandleProcess_TooManyItemsReturns400(t *testing.T) {
	s, _, pool := newTestServer(1)
	defer pool.Stop(time.Second)

	body := `{"items":[{"platform":"instagram","code":"A"},{"platform":"instagram","code":"B"}]}`
	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProcess_EmptyItemsReturns400(t *testing.T) {
	s, _, pool := newTestServer(10)
	defer pool.Stop(time.Second)

	body := `{"items":[]}`
	req := httptest.NewRequest(http.MethodPost, "/process", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleStatus_UnknownJobReturns404(t *testing.T) {
	s, _, pool := newTestServer(10)
	defer pool.Stop(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/status/"+uuid.New().String(), nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStatus_MalformedIDReturns404(t *testing.T) {
	s, _, pool := newTestServer(10)
	defer pool.Stop(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/status/not-a-uuid", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestHandleStatus_TailTruncation checks that tail=3 on a job with 10 log
// entries returns 3 entries; their order is checked by pkg/job's
// TestTailLogs.
func TestHandleStatus_TailTruncation(t *testing.T) {
	s, store, pool := newTestServer(10)
	defer pool.Stop(time.Second)

	j := store.Create([]job.WorkItem{{Platform: "instagram", Code: "A"}})
	for i := 1; i <= 10; i++ {
		store.Update(j.ID, job.Patch{AppendLog: &job.LogEntry{Ts: time.Now(), Level: job.LevelInfo, Msg: "L" + string(rune('0'+i%10))}})
	}

	req := httptest.NewRequest(http.MethodGet, "/status/"+j.ID.String()+"?tail=3", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Logs, 3)
}

func TestHandleHealth(t *testing.T) {
	s, _, pool := newTestServer(10)
	defer pool.Stop(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
