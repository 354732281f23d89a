package infra

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/stridegate/stridegate/internal/domain"
)

// ReplaySource implements domain.LocationProvider by replaying GPS fixes from
// a JSONL file, one domain.LocationSample per line. It stands in for a real
// geolocation API: delivery is paced by the configured interval, malformed
// lines surface as retryable sensor errors, and canceling the watch context
// releases the subscription so no further callbacks fire.
type ReplaySource struct {
	path     string
	interval time.Duration
	loop     bool
}

// NewReplaySource creates a replay provider. interval is the pacing between
// samples; loop restarts the file when exhausted.
func NewReplaySource(path string, interval time.Duration, loop bool) *ReplaySource {
	return &ReplaySource{path: path, interval: interval, loop: loop}
}

// Watch delivers samples until ctx is canceled or the file is exhausted
// (non-loop mode). Read or decode failures go to errFn; the watch keeps
// going, matching the retryable sensor-error posture.
func (r *ReplaySource) Watch(ctx context.Context, fn func(domain.LocationSample), errFn func(error)) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		file, err := os.Open(r.path)
		if err != nil {
			return fmt.Errorf("failed to open sample file: %w", err)
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var sample domain.LocationSample
			if err := json.Unmarshal(line, &sample); err != nil {
				errFn(fmt.Errorf("malformed location sample: %w", err))
				continue
			}
			if sample.Timestamp.IsZero() {
				sample.Timestamp = time.Now()
			}

			select {
			case <-ctx.Done():
				file.Close()
				return ctx.Err()
			case <-ticker.C:
				fn(sample)
			}
		}
		if err := scanner.Err(); err != nil {
			errFn(fmt.Errorf("failed to read sample file: %w", err))
		}
		file.Close()

		if !r.loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Ensure ReplaySource implements domain.LocationProvider.
var _ domain.LocationProvider = (*ReplaySource)(nil)

// ChannelSource implements domain.LocationProvider over an in-process
// channel, for tests and manual feeding.
type ChannelSource struct {
	Samples chan domain.LocationSample
}

// NewChannelSource creates a channel-backed provider.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{Samples: make(chan domain.LocationSample, buffer)}
}

// Watch delivers channel samples until ctx is canceled or the channel closes.
func (c *ChannelSource) Watch(ctx context.Context, fn func(domain.LocationSample), errFn func(error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-c.Samples:
			if !ok {
				return nil
			}
			fn(sample)
		}
	}
}

// Ensure ChannelSource implements domain.LocationProvider.
var _ domain.LocationProvider = (*ChannelSource)(nil)
