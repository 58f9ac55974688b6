package orchestrator

import (
	"context"
)

// processFarm drives the per-date sub-state machine for one farm and
// returns its accumulated FarmRecord. A non-nil error is a farm-level
// DOM contract failure (spec §7): fatal for the run, since the farm
// locator itself is untrustworthy.
//
// checkpointKey scopes the farm's checkpoint rows (spec §12): it is
// derived from (manager, date-window), not from a fresh per-process
// runID, so a process restarted over the same manager and window finds
// and resumes the prior attempt's terminal dates instead of reprocessing
// everything from scratch.
func (o *Orchestrator) processFarm(ctx context.Context, checkpointKey string, cfg RunConfig, link FarmLink, counts *runCounts) (FarmRecord, error) {
	record := FarmRecord{
		FarmID:      link.FarmID,
		SectionID:   link.SectionID,
		DisplayName: link.DisplayName,
		Manager:     cfg.Manager,
	}

	dates := DatesToProcess(o.now())
	for _, date := range dates {
		if o.stopRequested() {
			return record, nil
		}

		terminal, err := o.checkpoints.IsTerminal(ctx, checkpointKey, cfg.Manager, link.FarmID+"/"+link.SectionID, date)
		if err == nil && terminal {
			continue
		}
		_ = o.checkpoints.MarkInProgress(ctx, checkpointKey, cfg.Manager, link.FarmID+"/"+link.SectionID, date)

		o.publish("step", map[string]any{"farm": link.DisplayName, "date": date, "step": "navigating"})

		result := o.processDate(ctx, cfg, link, date)
		record.Dates = append(record.Dates, result)
		counts.datesProcessed++

		switch result.Status {
		case StatusFilled:
			counts.success++
			counts.chartsClicked++
		case StatusAlreadyFilled:
			counts.success++
		case StatusNoIrrigation:
			counts.noIrrigation++
		case StatusSkipped:
			counts.skip++
		case StatusError:
			counts.errorCount++
		}

		checkpointStatus := dateStatusToCheckpoint(result.Status)
		_ = o.checkpoints.MarkTerminal(ctx, checkpointKey, cfg.Manager, link.FarmID+"/"+link.SectionID, date, checkpointStatus)

		o.publish("step", map[string]any{"farm": link.DisplayName, "date": date, "status": string(result.Status)})
	}

	return record, nil
}
