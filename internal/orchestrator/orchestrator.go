package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/soilwatch/irrigation-automation/internal/browser"
	"github.com/soilwatch/irrigation-automation/internal/capture"
	"github.com/soilwatch/irrigation-automation/internal/checkpoint"
	"github.com/soilwatch/irrigation-automation/internal/hub"
	"github.com/soilwatch/irrigation-automation/internal/journal"
	"github.com/soilwatch/irrigation-automation/internal/learning"
)

// Timeouts from spec §5's numeric contract.
const (
	NavigationTimeout        = 15 * time.Second
	NetworkIdleTimeout       = 12 * time.Second
	CaptureTimeout           = 15 * time.Second
	ChartRenderTimeout       = 10 * time.Second
	LoginDetectionTimeout    = 10 * time.Second
	PostLoginConfirmTimeout  = 15 * time.Second
	chartPollInterval        = 100 * time.Millisecond
	tableSettleDelay         = 500 * time.Millisecond
)

// DOM selectors the core depends on (spec §6). Changes to the target
// site require updates here, not to the detection/decision logic.
const (
	selManagerRadio  = ".chakra-segment-group__itemText"
	selFarmListLink  = `div.css-nd8svt a[href*="/report/point/"]`
	selChartContainer = ".highcharts-container"
	selReportButton  = `button:contains("리포트 생성")`
)

// Dirs is the set of directories the orchestrator reads and writes
// (spec §6).
type Dirs struct {
	Screenshots  string
	CrashReports string
	Data         string
	Training     string
	History      string
}

// Orchestrator drives the per-farm/per-date state machine (C6).
type Orchestrator struct {
	driver        browser.Driver
	interceptor   *capture.Interceptor
	checkpoints   *checkpoint.Store
	learningStore *learning.Store
	journal       *journal.Journal
	hub           *hub.Hub
	dirs          Dirs
	baseURL       string
	headless      bool
	now           func() time.Time

	mu       sync.Mutex
	cfg      RunConfig
	progress ProgressSnapshot

	started    atomic.Bool
	shouldStop atomic.Bool
	mode       atomic.Value // string(Mode)
	maxFarms   atomic.Int64
}

// New builds an Orchestrator. now defaults to time.Now if nil (tests may
// override it for deterministic date windows).
func New(driver browser.Driver, checkpoints *checkpoint.Store, learningStore *learning.Store, j *journal.Journal, h *hub.Hub, dirs Dirs, baseURL string, headless bool, now func() time.Time) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		driver:        driver,
		interceptor:   capture.New(driver),
		checkpoints:   checkpoints,
		learningStore: learningStore,
		journal:       j,
		hub:           h,
		dirs:          dirs,
		baseURL:       baseURL,
		headless:      headless,
		now:           now,
	}
	o.mode.Store(string(ModeNormal))
	return o
}

// Logf implements chart.Logger by publishing a log envelope.
func (o *Orchestrator) Logf(format string, args ...any) {
	o.publish("log", map[string]any{"message": fmt.Sprintf(format, args...)})
}

func (o *Orchestrator) publish(typ string, fields map[string]any) {
	if o.hub == nil {
		return
	}
	o.hub.Publish(hub.NewEnvelope(typ, fields))
}

// Configure ingests RunConfig and marks the run started (spec §3). It is
// the only write the control plane needs to perform to unblock
// WaitUntilStarted.
func (o *Orchestrator) Configure(cfg RunConfig) {
	o.mu.Lock()
	o.cfg = cfg
	o.mu.Unlock()

	o.mode.Store(string(cfg.Mode))
	o.maxFarms.Store(int64(cfg.MaxFarms))
	o.started.Store(true)

	o.publish("manager", map[string]any{"manager": cfg.Manager})
}

// IsStarted reports whether Configure has been called for this run.
func (o *Orchestrator) IsStarted() bool { return o.started.Load() }

// WaitUntilStarted blocks the caller until Configure has been invoked.
// There is no timeout (spec §4.7): the server simply waits for the
// operator's Start action.
func (o *Orchestrator) WaitUntilStarted(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if o.started.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RequestStop sets the shouldStop flag (spec §4.7 /control/stop). The
// orchestrator checks it between every farm, every date, and before
// every mutating page action (spec §5).
func (o *Orchestrator) RequestStop() { o.shouldStop.Store(true) }

func (o *Orchestrator) stopRequested() bool { return o.shouldStop.Load() }

// SetMode atomically updates the live mode (spec §4.7 /control/mode).
func (o *Orchestrator) SetMode(m Mode) { o.mode.Store(string(m)) }

func (o *Orchestrator) currentMode() Mode {
	return Mode(o.mode.Load().(string))
}

// AddFarms atomically increases maxFarms (spec §4.7 /control/add-farms);
// this is the sole field of RunConfig mutable mid-run.
func (o *Orchestrator) AddFarms(n int) {
	o.maxFarms.Add(int64(n))
}

func (o *Orchestrator) currentMaxFarms() int {
	return int(o.maxFarms.Load())
}

// Progress returns the current snapshot for dashboard polling.
func (o *Orchestrator) Progress() ProgressSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// runOutput is written once per run to data/all-farms-data-<ts>.json
// (spec §6).
type runOutput struct {
	ExtractedAt         time.Time    `json:"extractedAt"`
	Manager             string       `json:"manager"`
	DateRange           dateRange    `json:"dateRange"`
	TotalFarms          int          `json:"totalFarms"`
	FarmsWithData       int          `json:"farmsWithData"`
	TotalDatesProcessed int          `json:"totalDatesProcessed"`
	TotalDatesWithData  int          `json:"totalDatesWithData"`
	Farms               []FarmRecord `json:"farms"`
}

type dateRange struct {
	Description string `json:"description"`
	TotalDays   int    `json:"totalDays"`
}

// Run executes the full run state machine (spec §4.6) until completion,
// abort, or a fatal error. It always appends exactly one journal entry
// (testable property 8).
func (o *Orchestrator) Run(ctx context.Context) error {
	runID := uuid.NewString()
	startedAt := o.now()

	o.mu.Lock()
	cfg := o.cfg
	o.mu.Unlock()

	// checkpointKey scopes checkpoint rows by (manager, date-window) rather
	// than by runID: runID is fresh on every invocation, so a restarted
	// process resuming the same manager over the same trailing date window
	// needs a stable key to find the prior attempt's terminal rows under
	// (spec §12 resumable checkpointing).
	checkpointKey := checkpointRunKey(cfg.Manager, DatesToProcess(o.now()))

	o.publish("status", map[string]any{"state": string(StateAuthenticating)})

	counts := runCounts{}
	var farms []FarmRecord
	terminalState := "completed"

	result := func() error {
		if err := o.driver.Launch(ctx, o.headless); err != nil {
			terminalState = "fatal_error"
			return fmt.Errorf("launching browser: %w", err)
		}

		navCtx, navCancel := context.WithTimeout(ctx, NavigationTimeout)
		navErr := o.driver.Goto(navCtx, o.baseURL, NavigationTimeout)
		navCancel()
		if navErr != nil {
			terminalState = "fatal_error"
			o.crashReport(ctx, "navigation_error(base_url): "+navErr.Error())
			return fmt.Errorf("navigating to %s: %w", o.baseURL, navErr)
		}

		if err := o.authenticate(ctx, cfg.Credentials); err != nil {
			terminalState = "fatal_error"
			o.crashReport(ctx, "auth_error: "+err.Error())
			return err
		}

		o.publish("status", map[string]any{"state": string(StateSelectingManager)})
		if err := o.selectManager(ctx, cfg.Manager); err != nil {
			terminalState = "fatal_error"
			o.crashReport(ctx, "dom_contract_error(manager): "+err.Error())
			return err
		}

		o.publish("status", map[string]any{"state": string(StateLoadingFarmList)})
		links, err := o.loadFarmList(ctx, cfg.Manager)
		if err != nil {
			terminalState = "fatal_error"
			o.crashReport(ctx, "dom_contract_error(farm_list): "+err.Error())
			return err
		}

		start := cfg.StartFrom
		if start < 1 {
			start = 1
		}
		end := len(links)
		if cfg.MaxFarms > 0 {
			if cap := start - 1 + o.currentMaxFarms(); cap < end {
				end = cap
			}
		}

		o.publish("status", map[string]any{"state": string(StatePerFarm)})

		for i := start - 1; i < end && i < len(links); i++ {
			if o.stopRequested() {
				terminalState = "aborted"
				return nil
			}
			// Honor a mid-run maxFarms increase at the next farm
			// iteration (spec §4.6).
			if cfg.MaxFarms > 0 {
				newEnd := start - 1 + o.currentMaxFarms()
				if newEnd > len(links) {
					newEnd = len(links)
				}
				if newEnd > end {
					end = newEnd
				}
			}

			link := links[i]
			o.mu.Lock()
			o.progress = ProgressSnapshot{
				CurrentFarmIndex: i + 1,
				TotalFarms:       len(links),
				CurrentFarmName:  link.DisplayName,
				CurrentStep:      "navigating",
				Percent:          percentOf(i, len(links)),
			}
			o.mu.Unlock()
			o.publish("progress", map[string]any{
				"currentFarmIndex": i + 1,
				"totalFarms":       len(links),
				"currentFarmName":  link.DisplayName,
				"percent":          percentOf(i, len(links)),
			})

			record, farmErr := o.processFarm(ctx, checkpointKey, cfg, link, &counts)
			farms = append(farms, record)
			if farmErr != nil {
				terminalState = "fatal_error"
				o.crashReport(ctx, "dom_contract_error(farm): "+farmErr.Error())
				return farmErr
			}
			if o.stopRequested() {
				terminalState = "aborted"
				return nil
			}
		}
		return nil
	}()

	if result != nil {
		terminalState = "fatal_error"
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = o.driver.Close(closeCtx)
	closeCancel()

	endedAt := o.now()
	o.publish("status", map[string]any{"state": terminalStateToRunState(terminalState)})

	o.writeOutput(cfg, startedAt, farms)

	entry := journal.Entry{
		ID:              runID,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(startedAt).Seconds(),
		Manager:         cfg.Manager,
		RequestedStart:  cfg.StartFrom,
		RequestedMax:    cfg.MaxFarms,
		ActualFarmCount: len(farms),
		FarmsCompleted:  len(farms),
		DatesProcessed:  counts.datesProcessed,
		ChartsClicked:   counts.chartsClicked,
		Success:         counts.success,
		Skip:            counts.skip,
		Error:           counts.errorCount,
		NoIrrigation:    counts.noIrrigation,
		TerminalState:   terminalState,
		Notes:           cfg.Notes,
	}
	if jerr := o.journal.Append(entry); jerr != nil {
		o.Logf("journal append failed: %v", jerr)
	}

	return result
}

// checkpointRunKey derives a stable checkpoint-scoping identifier from the
// manager and its trailing date window, so a process restarted over the
// same (manager, window) resumes the prior attempt's terminal rows instead
// of starting a fresh, empty checkpoint scope (spec §12). dates is assumed
// sorted oldest-first, as DatesToProcess returns it.
func checkpointRunKey(manager string, dates []string) string {
	if len(dates) == 0 {
		return manager
	}
	return fmt.Sprintf("%s|%s..%s", manager, dates[0], dates[len(dates)-1])
}

type runCounts struct {
	datesProcessed int
	chartsClicked  int
	success        int
	skip           int
	errorCount     int
	noIrrigation   int
}

func percentOf(i, total int) int {
	if total == 0 {
		return 0
	}
	return (i * 100) / total
}

func terminalStateToRunState(s string) string {
	switch s {
	case "aborted":
		return string(StateAborted)
	case "completed":
		return string(StateDone)
	default:
		return string(StateFatalError)
	}
}

func (o *Orchestrator) writeOutput(cfg RunConfig, startedAt time.Time, farms []FarmRecord) {
	datesWithData := 0
	datesProcessed := 0
	for _, f := range farms {
		for _, d := range f.Dates {
			datesProcessed++
			if d.Status == StatusFilled || d.Status == StatusAlreadyFilled {
				datesWithData++
			}
		}
	}

	out := runOutput{
		ExtractedAt:         o.now(),
		Manager:             cfg.Manager,
		DateRange:           dateRange{Description: "last 6 days", TotalDays: dateWindow},
		TotalFarms:          len(farms),
		FarmsWithData:       len(farms),
		TotalDatesProcessed: datesProcessed,
		TotalDatesWithData:  datesWithData,
		Farms:               farms,
	}

	path := outputPath(o.dirs.Data, startedAt)
	if err := writeJSONFile(path, out); err != nil {
		o.Logf("write run output failed: %v", err)
	}
}
