package downloader

import (
	"context"
	"fmt"
	"strconv"
)

// StatusFunc receives human-readable progress of one transfer. total is empty
// and percentage 0 when the server did not announce a length.
type StatusFunc func(fileName, current, total string, percentage float64)

// progressWriter counts what passes through it and reports to a StatusFunc.
// It fails the copy once ctx is done, so a cancelled transfer stops at the
// next chunk.
type progressWriter struct {
	ctx      context.Context
	fileName string
	total    int64
	written  int64
	report   StatusFunc
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	if err := pw.ctx.Err(); err != nil {
		return 0, err
	}

	pw.written += int64(len(p))
	if pw.report == nil {
		return len(p), nil
	}

	if pw.total <= 0 {
		pw.report(pw.fileName, formatBytes(pw.written), "", 0)
		return len(p), nil
	}
	percentage := min(float64(pw.written)/float64(pw.total)*100, 100)
	pw.report(pw.fileName, formatBytes(pw.written), formatBytes(pw.total), percentage)
	return len(p), nil
}

// formatBytes renders a size with binary prefixes, e.g. 1536 -> "1.5 KiB".
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatInt(bytes, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
