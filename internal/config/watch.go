package config

import (
	"context"
	"crypto/sha256"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// stationsWatcher remembers the last applied revision of stations.yaml.
type stationsWatcher struct {
	path     string
	modTime  time.Time
	checksum [sha256.Size]byte
	logger   *zerolog.Logger
	onUpdate func(*StationsConfig)
}

// WatchStations loads stations.yaml, hands it to onUpdate and then polls the
// file every interval. A new revision is applied only when both the mtime
// moved and the content changed; an invalid revision is logged and skipped,
// leaving the previous catalogue in place.
func WatchStations(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*StationsConfig)) error {
	if path == "" {
		path = "configs/stations.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if onUpdate == nil {
		onUpdate = func(*StationsConfig) {}
	}

	w := &stationsWatcher{path: path, logger: logger, onUpdate: onUpdate}
	if err := w.load(); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
	return nil
}

func (w *stationsWatcher) load() error {
	info, err := os.Stat(w.path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	cfg, err := ParseStationsConfig(data)
	if err != nil {
		return err
	}
	w.modTime = info.ModTime()
	w.checksum = sha256.Sum256(data)
	w.onUpdate(cfg)
	return nil
}

func (w *stationsWatcher) poll() {
	info, err := os.Stat(w.path)
	if err != nil || !info.ModTime().After(w.modTime) {
		return
	}
	w.modTime = info.ModTime()

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("stations config unreadable")
		return
	}
	sum := sha256.Sum256(data)
	if sum == w.checksum {
		return
	}

	cfg, err := ParseStationsConfig(data)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("stations config reload rejected")
		return
	}
	w.checksum = sum
	w.onUpdate(cfg)
}
