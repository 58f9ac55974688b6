package control

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilwatch/irrigation-automation/internal/hub"
	"github.com/soilwatch/irrigation-automation/internal/journal"
	"github.com/soilwatch/irrigation-automation/internal/learning"
	"github.com/soilwatch/irrigation-automation/internal/orchestrator"
)

type fakeRunner struct {
	configured   []orchestrator.RunConfig
	stopped      bool
	mode         orchestrator.Mode
	addedFarms   int
	started      bool
	progress     orchestrator.ProgressSnapshot
}

func (f *fakeRunner) Configure(cfg orchestrator.RunConfig) {
	f.configured = append(f.configured, cfg)
	f.started = true
}
func (f *fakeRunner) IsStarted() bool                      { return f.started }
func (f *fakeRunner) RequestStop()                         { f.stopped = true }
func (f *fakeRunner) SetMode(m orchestrator.Mode)          { f.mode = m }
func (f *fakeRunner) AddFarms(n int)                       { f.addedFarms += n }
func (f *fakeRunner) Progress() orchestrator.ProgressSnapshot { return f.progress }

func newTestServer(t *testing.T) (*Server, *fakeRunner, Dirs) {
	t.Helper()
	dir := t.TempDir()
	dirs := Dirs{
		Screenshots:  filepath.Join(dir, "screenshots"),
		CrashReports: filepath.Join(dir, "crash-reports"),
	}
	require.NoError(t, os.MkdirAll(dirs.Screenshots, 0o755))
	require.NoError(t, os.MkdirAll(dirs.CrashReports, 0o755))

	runner := &fakeRunner{}
	h := hub.New()
	j := journal.New(filepath.Join(dir, "run_logs.json"))
	learn := learning.NewStore(filepath.Join(dir, "training-data.json"))

	s := New(runner, h, j, learn, dirs)
	return s, runner, dirs
}

func TestHandleControlStartConfiguresRunner(t *testing.T) {
	s, runner, _ := newTestServer(t)

	body, err := json.Marshal(orchestrator.RunConfig{Manager: "Acme Farms", MaxFarms: 3})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/control/start", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, runner.configured, 1)
	assert.Equal(t, "Acme Farms", runner.configured[0].Manager)
	assert.Equal(t, orchestrator.ModeNormal, runner.configured[0].Mode)
	assert.True(t, runner.IsStarted())
}

func TestHandleControlStartReportSendingForcesMode(t *testing.T) {
	s, runner, _ := newTestServer(t)

	body, _ := json.Marshal(orchestrator.RunConfig{Manager: "Acme Farms", Mode: orchestrator.ModeNormal})
	req := httptest.NewRequest(http.MethodPost, "/control/start-report-sending", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	require.Len(t, runner.configured, 1)
	assert.Equal(t, orchestrator.ModeReportSending, runner.configured[0].Mode)
}

func TestHandleControlStop(t *testing.T) {
	s, runner, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/control/stop", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.True(t, runner.stopped)
}

func TestHandleControlMode(t *testing.T) {
	s, runner, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"mode": "watch"})
	req := httptest.NewRequest(http.MethodPost, "/control/mode", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, orchestrator.ModeWatch, runner.mode)
}

func TestHandleControlAddFarms(t *testing.T) {
	s, runner, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]int{"n": 4})
	req := httptest.NewRequest(http.MethodPost, "/control/add-farms", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, 4, runner.addedFarms)
}

func TestHandleAPIHistoryReturnsJournalEntries(t *testing.T) {
	s, _, _ := newTestServer(t)

	require.NoError(t, s.journal.Append(journal.Entry{
		ID:            "run-1",
		Manager:       "Acme Farms",
		TerminalState: "completed",
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].ID)
}

func TestHandleHistoryRendersNotesAsMarkdown(t *testing.T) {
	s, _, _ := newTestServer(t)

	require.NoError(t, s.journal.Append(journal.Entry{
		ID:            "run-1",
		Manager:       "Acme Farms",
		TerminalState: "completed",
		Notes:         "**bold** note",
	}))

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<strong>bold</strong>")
}

func TestHandleLearningDataReturnsAveragedOffsets(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/learning-data", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var offsets learning.Offsets
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &offsets))
	assert.Equal(t, learning.Point{}, offsets.First)
}

func TestHandleScreenshotRejectsPathTraversal(t *testing.T) {
	s, _, dirs := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Screenshots, "ok.png"), []byte("fake-png"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/screenshot?path="+"../../../../etc/passwd", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleScreenshotServesFileUnderScreenshotsRoot(t *testing.T) {
	s, _, dirs := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Screenshots, "ok.png"), []byte("fake-png"), 0o644))

	req := httptest.NewRequest(http.MethodGet, "/screenshot?path=ok.png", nil)
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "fake-png", rr.Body.String())
}

func TestHandleEventsStreamsPublishedEnvelope(t *testing.T) {
	s, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		s.mux.ServeHTTP(rr, req)
		close(done)
	}()

	// Give the handler time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	s.hub.Publish(hub.NewEnvelope("status", map[string]any{"state": "per_farm"}))
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.Contains(t, rr.Body.String(), `"type":"status"`)
	assert.Contains(t, rr.Body.String(), `"state":"per_farm"`)
}

func TestStartIncrementsPortOnConflict(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()
	occupied := ln.Addr().(*net.TCPAddr).Port

	s, _, _ := newTestServer(t)
	bound, err := s.Start(occupied)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	}()

	assert.NotEqual(t, occupied, bound)
	assert.Greater(t, bound, occupied)
}
