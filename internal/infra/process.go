package infra

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/stridegate/stridegate/internal/domain"
)

// ProcessWatchImpl implements domain.ProcessWatcher using gopsutil.
// Detection only: the gate never kills anything, it reports.
type ProcessWatchImpl struct{}

// NewProcessWatch creates a new process watcher.
func NewProcessWatch() domain.ProcessWatcher {
	return &ProcessWatchImpl{}
}

// IsRunning reports whether any process matches the pattern (case-insensitive
// substring).
func (w *ProcessWatchImpl) IsRunning(pattern string) (bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return false, err
	}

	patternLower := strings.ToLower(pattern)
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.Contains(strings.ToLower(name), patternLower) {
			return true, nil
		}
	}
	return false, nil
}

// MatchingProcesses returns names of running processes matching any label.
func (w *ProcessWatchImpl) MatchingProcesses(labels []string) ([]string, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	lowered := make([]string, len(labels))
	for i, l := range labels {
		lowered[i] = strings.ToLower(l)
	}

	var matches []string
	seen := make(map[string]bool)
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		nameLower := strings.ToLower(name)
		for _, label := range lowered {
			if label == "" {
				continue
			}
			if strings.Contains(nameLower, label) && !seen[name] {
				seen[name] = true
				matches = append(matches, name)
				break
			}
		}
	}
	return matches, nil
}

// Ensure ProcessWatchImpl implements domain.ProcessWatcher.
var _ domain.ProcessWatcher = (*ProcessWatchImpl)(nil)
