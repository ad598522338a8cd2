package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elonfeng/rankradar/internal/logger"
)

type fallbackDump struct {
	RunID      string   `json:"run_id"`
	Kind       string   `json:"kind"`
	Period     string   `json:"period"`
	CapturedAt string   `json:"captured_at"`
	Error      string   `json:"error"`
	FailedKeys []string `json:"failed_keys,omitempty"`
	Records    any      `json:"records"`
}

// dumpFallback writes records that could not be fully persisted to a JSON
// file so they can be replayed by hand. It returns the file path, or "" when
// no fallback directory is configured or the dump itself failed.
func (p *Pipeline) dumpFallback(log logger.Logger, rep Report, records any) string {
	if p.cfg.FallbackDir == "" {
		return ""
	}

	dump := fallbackDump{
		RunID:      rep.RunID,
		Kind:       string(rep.Kind),
		Period:     string(rep.Period),
		CapturedAt: rep.CapturedAt.Format(time.RFC3339),
		Records:    records,
	}
	if rep.Err != nil {
		dump.Error = rep.Err.Error()
	}
	for _, f := range rep.Failures {
		dump.FailedKeys = append(dump.FailedKeys, f.Key.String())
	}

	path, err := writeDump(p.cfg.FallbackDir, rep, dump)
	if err != nil {
		log.Error("fallback dump failed", logger.Error(err))
		return ""
	}
	log.Warn("batch dumped to fallback file", logger.String("path", path))
	return path
}

func writeDump(dir string, rep Report, dump fallbackDump) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create fallback dir: %w", err)
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal fallback: %w", err)
	}

	runID := rep.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	name := fmt.Sprintf("%s_%s_%s_%s.json",
		rep.Kind, rep.Period, rep.CapturedAt.Format("20060102_150405"), runID)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write fallback: %w", err)
	}
	return path, nil
}
