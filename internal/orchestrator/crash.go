package orchestrator

import (
	"context"
	"os"
	"path/filepath"
)

// crashReport writes the crash-report bundle described in spec §6
// (screenshot.png, dom.html, reason.txt, timestamp.txt) before browser
// resources are released, per the Design Notes' resource-cleanup
// guidance. Failures to write the bundle are logged, not escalated: a
// crash report is best-effort diagnostics, not part of the run's
// correctness contract.
func (o *Orchestrator) crashReport(ctx context.Context, reason string) {
	if o.dirs.CrashReports == "" {
		return
	}

	dir := filepath.Join(o.dirs.CrashReports, o.now().UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.Logf("crash report: mkdir failed: %v", err)
		return
	}

	if shot, err := o.driver.Screenshot(ctx); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "screenshot.png"), shot, 0o644)
	}
	if html, err := o.driver.OuterHTML(ctx); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "dom.html"), []byte(html), 0o644)
	}
	_ = os.WriteFile(filepath.Join(dir, "reason.txt"), []byte(reason), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "timestamp.txt"), []byte(o.now().UTC().Format("2006-01-02T15:04:05Z07:00")), 0o644)

	o.publish("log", map[string]any{"message": "crash report written to " + dir})
}
