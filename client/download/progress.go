package download

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// progressWriter is an io.Writer, logging download progress at
// most once per second if enabled.
type progressWriter struct {
	w           io.Writer
	logger      *slog.Logger
	transferred int64
	total       int64
	startTime   time.Time
	lastLog     time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.transferred += int64(n)

	if time.Since(pw.lastLog) >= time.Second {
		pw.lastLog = time.Now()
		pw.log("downloading")
	}

	if pw.total >= 0 && pw.transferred == pw.total {
		pw.log("download complete")
	}

	return n, err
}

func (pw *progressWriter) log(msg string) {
	elapsed := time.Since(pw.startTime)

	progress := "unknown"
	if pw.total > 0 {
		progress = fmt.Sprintf("%.1f%%", float64(pw.transferred)/float64(pw.total)*100)
	}

	var rate uint64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = uint64(float64(pw.transferred) / secs)
	}

	total := "unknown"
	if pw.total >= 0 {
		total = humanize.IBytes(uint64(pw.total))
	}

	pw.logger.Info(msg,
		"progress", progress,
		"elapsed", elapsed.Round(time.Millisecond),
		"transferred", humanize.IBytes(uint64(pw.transferred)),
		"total", total,
		"rate", humanize.IBytes(rate)+"/s",
	)
}
