package utils

import (
	"sync"
	"time"

	"github.com/mudler/xlog"
)

// DownloadLogger logs download progress at most once per interval, with an
// ETA derived from the elapsed time. It is the non-interactive counterpart
// of a progress bar.
type DownloadLogger struct {
	Interval time.Duration

	mu           sync.Mutex
	startTime    time.Time
	lastProgress time.Time
}

func NewDownloadLogger(interval time.Duration) *DownloadLogger {
	now := time.Now()
	return &DownloadLogger{Interval: interval, startTime: now, lastProgress: now}
}

func (d *DownloadLogger) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startTime = time.Now()
	d.lastProgress = d.startTime
}

// Display has the signature of a downloader status callback.
func (d *DownloadLogger) Display(fileName string, current string, total string, percentage float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	currentTime := time.Now()
	if currentTime.Sub(d.lastProgress) < d.Interval && percentage < 100 {
		return
	}
	d.lastProgress = currentTime

	var eta time.Duration
	if percentage > 0 {
		elapsed := currentTime.Sub(d.startTime)
		eta = time.Duration(float64(elapsed)*(100/percentage) - float64(elapsed)).Round(time.Second)
	}

	if total != "" {
		xlog.Info("Downloading", "file", fileName, "current", current, "total", total, "percentage", percentage, "eta", eta)
	} else {
		xlog.Info("Downloading", "file", fileName, "current", current)
	}
}
