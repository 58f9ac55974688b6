// Command irrigationwatch drives the irrigation-event detection and
// orchestration engine: it visits each configured farm's recent date
// window, intercepts sensor series from the dashboard's API, detects
// irrigation events, fills the corresponding form fields, and serves an
// operator dashboard over HTTP+SSE for start/stop/mode control.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soilwatch/irrigation-automation/internal/browser"
	"github.com/soilwatch/irrigation-automation/internal/checkpoint"
	"github.com/soilwatch/irrigation-automation/internal/config"
	"github.com/soilwatch/irrigation-automation/internal/control"
	"github.com/soilwatch/irrigation-automation/internal/hub"
	"github.com/soilwatch/irrigation-automation/internal/journal"
	"github.com/soilwatch/irrigation-automation/internal/learning"
	"github.com/soilwatch/irrigation-automation/internal/orchestrator"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "irrigationwatch",
		Short: "Detects and fills daily irrigation start/end times from soil-moisture dashboards",
		RunE:  run,
	}

	f := rootCmd.Flags()
	f.String("manager", "", "manager name whose farms are processed")
	f.Int("max-farms", 0, "maximum number of farms to process (0 = all)")
	f.Bool("headless", true, "run the browser headless")
	f.Int("dashboard-port", 8080, "HTTP port for the operator dashboard")
	f.String("state-dir", "./state", "directory for checkpoint database")
	f.String("data-dir", "./data", "directory for per-run output files")
	f.String("training-dir", "./training", "directory for the learning store")
	f.String("history-dir", "./history", "directory for the run journal")
	f.String("screenshots-dir", "./screenshots", "directory for operator screenshots")
	f.String("crash-reports-dir", "./crash-reports", "directory for crash reports")
	f.String("target-base-url", "", "base URL of the irrigation dashboard")
	f.String("username", "", "target-site login username")
	f.String("password", "", "target-site login password")

	bindFlag := func(viperKey, flagName string) {
		_ = viper.BindPFlag(viperKey, f.Lookup(flagName))
	}
	bindFlag("manager", "manager")
	bindFlag("max_farms", "max-farms")
	bindFlag("headless", "headless")
	bindFlag("dashboard_port", "dashboard-port")
	bindFlag("state_dir", "state-dir")
	bindFlag("data_dir", "data-dir")
	bindFlag("training_dir", "training-dir")
	bindFlag("history_dir", "history-dir")
	bindFlag("screenshots_dir", "screenshots-dir")
	bindFlag("crash_reports_dir", "crash-reports-dir")
	bindFlag("target_base_url", "target-base-url")
	bindFlag("username", "username")
	bindFlag("password", "password")

	// HEADLESS and TRAINING_MODE are named directly by spec §6, so they
	// are bound without the viper env prefix used for everything else.
	_ = viper.BindEnv("headless", "HEADLESS")
	_ = viper.BindEnv("training_mode", "TRAINING_MODE")

	viper.SetEnvPrefix("IRRIGWATCH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	fmt.Println("irrigationwatch starting")
	fmt.Printf("  manager: %s\n", cfg.Manager)
	fmt.Printf("  max farms: %d\n", cfg.MaxFarms)
	fmt.Printf("  headless: %t\n", cfg.Headless)
	fmt.Printf("  training mode: %t\n", cfg.TrainingMode)
	fmt.Printf("  dashboard: :%d\n", cfg.DashboardPort)
	fmt.Println()

	if cfg.TargetBaseURL == "" {
		return fmt.Errorf("target-base-url is required")
	}

	dirs := orchestrator.Dirs{
		Screenshots:  cfg.ScreenshotsDir,
		CrashReports: cfg.CrashReportsDir,
		Data:         cfg.DataDir,
		Training:     cfg.TrainingDir,
		History:      cfg.HistoryDir,
	}
	if err := initDirs(dirs, cfg.StateDir); err != nil {
		return fmt.Errorf("initializing directories: %w", err)
	}

	checkpoints, err := checkpoint.Open(filepath.Join(cfg.StateDir, "checkpoints.db"))
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	defer checkpoints.Close() //nolint:errcheck

	learningStore := learning.NewStore(filepath.Join(cfg.TrainingDir, "training-data.json"))
	runJournal := journal.New(filepath.Join(cfg.HistoryDir, "run_logs.json"))
	broadcastHub := hub.New()

	driver := browser.NewChromeDriver()

	o := orchestrator.New(driver, checkpoints, learningStore, runJournal, broadcastHub, dirs, cfg.TargetBaseURL, cfg.Headless, nil)

	controlDirs := control.Dirs{Screenshots: cfg.ScreenshotsDir, CrashReports: cfg.CrashReportsDir}
	server := control.New(o, broadcastHub, runJournal, learningStore, controlDirs)
	boundPort, err := server.Start(cfg.DashboardPort)
	if err != nil {
		return fmt.Errorf("starting dashboard: %w", err)
	}
	log.Printf("dashboard ready on :%d", boundPort)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, requesting stop...", sig)
		o.RequestStop()
		cancel()
	}()

	mode := orchestrator.ModeNormal
	if cfg.TrainingMode {
		mode = orchestrator.ModeLearning
	}

	// --manager makes this a CLI-driven run (spec §6: --manager/--max-farms
	// are process args, not just dashboard pre-fill hints): configure and
	// launch immediately instead of waiting on a /control/start POST that
	// will never arrive. Without --manager, fall back to waiting for the
	// operator to start a run from the dashboard.
	if cfg.Manager != "" {
		o.Configure(orchestrator.RunConfig{
			Manager:     cfg.Manager,
			Mode:        mode,
			MaxFarms:    cfg.MaxFarms,
			Credentials: orchestrator.Credentials{Username: cfg.Username, Password: cfg.Password},
		})
	} else {
		log.Println("waiting for operator to start a run via the dashboard...")
		if err := o.WaitUntilStarted(ctx); err != nil {
			return fmt.Errorf("waiting for run start: %w", err)
		}
	}

	runErr := o.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("dashboard shutdown: %v", err)
	}

	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}
	return nil
}

// initDirs creates every directory the orchestrator reads and writes
// (spec §9 Design Notes: scripted at startup, process-wide, no teardown).
func initDirs(dirs orchestrator.Dirs, stateDir string) error {
	for _, d := range []string{dirs.Screenshots, dirs.CrashReports, dirs.Data, dirs.Training, dirs.History, stateDir} {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
