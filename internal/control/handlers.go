package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/soilwatch/irrigation-automation/internal/journal"
	"github.com/soilwatch/irrigation-automation/internal/orchestrator"
)

// handleIndex serves the live-run dashboard document.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Progress  orchestrator.ProgressSnapshot
		IsStarted bool
	}{
		Progress:  s.runner.Progress(),
		IsStarted: s.runner.IsStarted(),
	}
	s.render(w, "dashboard.html", data)
}

// handleHistory serves the run-history document, rendering each entry's
// operator note as markdown.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.journal.List()
	if err != nil {
		http.Error(w, "journal read error", http.StatusInternalServerError)
		return
	}
	s.render(w, "history.html", struct{ Entries []journalEntryView }{toJournalViews(entries)})
}

type journalEntryView struct {
	ID              string
	StartedAt       string
	EndedAt         string
	DurationSeconds float64
	Manager         string
	FarmsCompleted  int
	DatesProcessed  int
	ChartsClicked   int
	Success         int
	Skip            int
	Error           int
	NoIrrigation    int
	TerminalState   string
	Notes           string
}

func toJournalViews(entries []journal.Entry) []journalEntryView {
	views := make([]journalEntryView, len(entries))
	for i, e := range entries {
		views[i] = journalEntryView{
			ID:              e.ID,
			StartedAt:       e.StartedAt.Format("2006-01-02 15:04:05 UTC"),
			EndedAt:         e.EndedAt.Format("2006-01-02 15:04:05 UTC"),
			DurationSeconds: e.DurationSeconds,
			Manager:         e.Manager,
			FarmsCompleted:  e.FarmsCompleted,
			DatesProcessed:  e.DatesProcessed,
			ChartsClicked:   e.ChartsClicked,
			Success:         e.Success,
			Skip:            e.Skip,
			Error:           e.Error,
			NoIrrigation:    e.NoIrrigation,
			TerminalState:   e.TerminalState,
			Notes:           e.Notes,
		}
	}
	return views
}

// handleAPIHistory returns the run journal as a JSON array (spec §4.7).
func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.journal.List()
	if err != nil {
		http.Error(w, "journal read error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(entries)
}

// handleEvents opens a push stream of hub envelopes (spec §4.7), using
// the same header/retry/flush/unsubscribe sequence the teacher's
// per-session stream used, generalized to the single global hub.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	_, _ = fmt.Fprintf(w, "retry: 3000\n\n")
	flusher.Flush()

	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case envelope, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(envelope)
			if err != nil {
				continue
			}
			if _, werr := fmt.Fprintf(w, "data: %s\n\n", data); werr != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleScreenshot streams a PNG by repository-relative path, restricted
// to the screenshots and crash-reports directories to prevent path
// traversal outside them.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	resolved, err := resolveUnderRoots(rel, s.dirs.Screenshots, s.dirs.CrashReports)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, resolved)
}

// resolveUnderRoots joins rel onto each root in turn and returns the
// first result that both exists and stays within that root after
// cleaning, rejecting any ".." escape.
func resolveUnderRoots(rel string, roots ...string) (string, error) {
	for _, root := range roots {
		if root == "" {
			continue
		}
		cleanRoot := filepath.Clean(root)
		candidate := filepath.Join(cleanRoot, filepath.Clean("/"+rel))
		if candidate != cleanRoot && !strings.HasPrefix(candidate, cleanRoot+string(filepath.Separator)) {
			continue
		}
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		return candidate, nil
	}
	return "", fmt.Errorf("control: %q not found under configured roots", rel)
}

// handleLearningData returns the averaged click-offset corrections (spec
// §4.7), used by the dashboard to show training-mode progress.
func (s *Server) handleLearningData(w http.ResponseWriter, r *http.Request) {
	offsets, err := s.learn.AveragedOffsets()
	if err != nil {
		http.Error(w, "learning store read error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(offsets)
}

// handleControlStart accepts a RunConfig JSON body and marks the run
// started (spec §4.7).
func (s *Server) handleControlStart(w http.ResponseWriter, r *http.Request) {
	s.decodeAndConfigure(w, r, orchestrator.ModeNormal)
}

// handleControlStartReportSending is identical to handleControlStart but
// forces mode=report-sending regardless of the submitted body.
func (s *Server) handleControlStartReportSending(w http.ResponseWriter, r *http.Request) {
	s.decodeAndConfigure(w, r, orchestrator.ModeReportSending)
}

func (s *Server) decodeAndConfigure(w http.ResponseWriter, r *http.Request, forceMode orchestrator.Mode) {
	var cfg orchestrator.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid run config", http.StatusBadRequest)
		return
	}
	if forceMode == orchestrator.ModeReportSending {
		cfg.Mode = orchestrator.ModeReportSending
	} else if cfg.Mode == "" {
		cfg.Mode = orchestrator.ModeNormal
	}
	s.runner.Configure(cfg)
	w.WriteHeader(http.StatusAccepted)
}

// handleControlStop sets shouldStop=true (spec §4.7).
func (s *Server) handleControlStop(w http.ResponseWriter, r *http.Request) {
	s.runner.RequestStop()
	w.WriteHeader(http.StatusAccepted)
}

// handleControlMode atomically updates the live mode (spec §4.7).
func (s *Server) handleControlMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid mode", http.StatusBadRequest)
		return
	}
	s.runner.SetMode(orchestrator.Mode(body.Mode))
	w.WriteHeader(http.StatusAccepted)
}

// handleControlAddFarms atomically increments maxFarms (spec §4.7).
func (s *Server) handleControlAddFarms(w http.ResponseWriter, r *http.Request) {
	var body struct {
		N int `json:"n"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid count", http.StatusBadRequest)
		return
	}
	s.runner.AddFarms(body.N)
	w.WriteHeader(http.StatusAccepted)
}
