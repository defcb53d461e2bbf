package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/deepsave/pkg/deepsave"
	deerrors "github.com/matzehuels/deepsave/pkg/errors"
	"github.com/matzehuels/deepsave/pkg/observability"
)

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

type ctxKey int

const loggerKey ctxKey = 0

func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext returns the command's logger. Outside a command run it
// returns a logger that discards everything, so library code calling the
// save hooks stays silent.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.New(io.Discard)
}

// saveLog times one save call and writes its summary line.
type saveLog struct {
	logger *log.Logger
	target string
	start  time.Time
}

func newSaveLog(l *log.Logger, target string) *saveLog {
	return &saveLog{logger: l, target: target, start: time.Now()}
}

func (s *saveLog) elapsed() time.Duration {
	return time.Since(s.start).Round(time.Millisecond)
}

func (s *saveLog) done(res deepsave.Result) {
	s.logger.Info("save finished",
		"target", s.target,
		"objects", len(res.Refs),
		"rounds", res.Rounds,
		"requests", res.Requests,
		"duration", s.elapsed())
}

func (s *saveLog) failed(err error) {
	s.logger.Error("save failed",
		"target", s.target,
		"code", deerrors.GetCode(err),
		"duration", s.elapsed())
}

// logHooks forwards engine events to the logger carried by the context.
// The engine's own logger covers batches; the hooks add the walk summary
// and the batch dispatch.
type logHooks struct {
	observability.NoopSaveHooks
}

func (logHooks) OnWalk(ctx context.Context, nodes, edges int, err error) {
	l := loggerFromContext(ctx)
	if err != nil {
		l.Debug("graph rejected", "error", err)
		return
	}
	l.Debug("graph walked", "unsaved", nodes, "edges", edges)
}

func (logHooks) OnBatchStart(ctx context.Context, class string, size int) {
	loggerFromContext(ctx).Debug("sending batch", "class", class, "size", size)
}

func (logHooks) OnRootCommit(ctx context.Context, class string, d time.Duration, err error) {
	if err != nil {
		loggerFromContext(ctx).Debug("root commit failed", "class", class, "error", err)
	}
}
