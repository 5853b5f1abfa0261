package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// CreateRunDir creates a fresh run directory under baseDir/testName and
// points the test's `latest` symlink at it. The uuid suffix keeps two runs
// started within the same second apart.
func CreateRunDir(baseDir, testName string) (string, error) {
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(baseDir, testName, fmt.Sprintf("run_%s_%s", stamp, uuid.NewString()[:8]))
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, testName, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// ConfigsDir holds the materialized configuration artifacts for a run.
func ConfigsDir(runDir string) string {
	return filepath.Join(runDir, "configs")
}

// LogsDir holds subject server logs and full per-scenario call output.
func LogsDir(runDir string) string {
	return filepath.Join(runDir, "logs")
}

// WriteRecords persists the full execution record sequence as results.json.
func WriteRecords(runDir string, records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling records: %w", err)
	}
	return os.WriteFile(filepath.Join(runDir, "results.json"), data, 0o644)
}

// ReadRecords loads a run's results.json.
func ReadRecords(runDir string) ([]Record, error) {
	data, err := os.ReadFile(filepath.Join(runDir, "results.json"))
	if err != nil {
		return nil, fmt.Errorf("reading results: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing results: %w", err)
	}
	return records, nil
}
