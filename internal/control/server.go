// Package control implements the dashboard HTTP server (C7): it exposes
// the operator-facing endpoints from spec §4.7, streams orchestrator
// envelopes over SSE, and renders the history page.
package control

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/soilwatch/irrigation-automation/internal/hub"
	"github.com/soilwatch/irrigation-automation/internal/journal"
	"github.com/soilwatch/irrigation-automation/internal/learning"
	"github.com/soilwatch/irrigation-automation/internal/orchestrator"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// maxPortAttempts bounds the port-increment-on-conflict retry (spec
// §4.7) so a persistently occupied range fails loudly instead of
// climbing forever.
const maxPortAttempts = 20

// Runner is the subset of *orchestrator.Orchestrator the control plane
// drives. A narrow interface keeps the server testable with a fake.
type Runner interface {
	Configure(cfg orchestrator.RunConfig)
	IsStarted() bool
	RequestStop()
	SetMode(m orchestrator.Mode)
	AddFarms(n int)
	Progress() orchestrator.ProgressSnapshot
}

// Dirs is the subset of orchestrator.Dirs the server needs to serve
// screenshots and crash-report images by repository-relative path.
type Dirs struct {
	Screenshots  string
	CrashReports string
}

// Server is the HTTP server for the operator dashboard.
type Server struct {
	runner  Runner
	hub     *hub.Hub
	journal *journal.Journal
	learn   *learning.Store
	dirs    Dirs

	mux    *http.ServeMux
	tmpl   *template.Template
	server *http.Server
}

// New builds a Server. It does not start listening; call Start.
func New(runner Runner, h *hub.Hub, j *journal.Journal, learn *learning.Store, dirs Dirs) *Server {
	s := &Server{
		runner:  runner,
		hub:     h,
		journal: j,
		learn:   learn,
		dirs:    dirs,
		mux:     http.NewServeMux(),
	}
	s.parseTemplates()
	s.registerRoutes()
	return s
}

// Start binds a listener starting at port, incrementing on conflict up
// to maxPortAttempts (spec §4.7), then serves until Shutdown is called
// or the listener errors. It returns the port actually bound once
// listening begins, or 0 and a non-nil error if every attempt in range
// failed.
func (s *Server) Start(port int) (int, error) {
	var ln net.Listener
	var err error
	bound := port
	for attempt := 0; attempt < maxPortAttempts; attempt++ {
		bound = port + attempt
		ln, err = net.Listen("tcp", fmt.Sprintf(":%d", bound))
		if err == nil {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("control: no free port in [%d,%d]: %w", port, port+maxPortAttempts-1, err)
	}

	s.server = &http.Server{
		Handler:      corsPermissive(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("dashboard listening on :%d", bound)
	go func() {
		if serveErr := s.server.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Printf("dashboard server error: %v", serveErr)
		}
	}()
	return bound, nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// corsPermissive allows any origin, matching spec §4.7's "this is a
// localhost tool" stance.
func corsPermissive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerRoutes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /history", s.handleHistory)
	s.mux.HandleFunc("GET /api/history", s.handleAPIHistory)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /screenshot", s.handleScreenshot)
	s.mux.HandleFunc("GET /learning-data", s.handleLearningData)

	s.mux.HandleFunc("POST /control/start", s.handleControlStart)
	s.mux.HandleFunc("POST /control/start-report-sending", s.handleControlStartReportSending)
	s.mux.HandleFunc("POST /control/stop", s.handleControlStop)
	s.mux.HandleFunc("POST /control/mode", s.handleControlMode)
	s.mux.HandleFunc("POST /control/add-farms", s.handleControlAddFarms)
}

func (s *Server) parseTemplates() {
	funcMap := template.FuncMap{
		"fmtTime": func(t time.Time) string {
			if t.IsZero() {
				return "--"
			}
			return t.Format("2006-01-02 15:04:05 UTC")
		},
		"fmtDuration": func(seconds float64) string {
			return time.Duration(seconds * float64(time.Second)).Truncate(time.Second).String()
		},
		"statusClass": func(state string) string {
			switch state {
			case string(orchestrator.StateDone), "completed":
				return "status-done"
			case string(orchestrator.StateAborted):
				return "status-aborted"
			case string(orchestrator.StateFatalError):
				return "status-error"
			default:
				return "status-running"
			}
		},
		"renderNotes": renderMarkdown,
		"itoa":        strconv.Itoa,
	}

	s.tmpl = template.Must(
		template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"),
	)
}

// render executes the named page template; each template is a complete
// HTML document.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("template %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}
