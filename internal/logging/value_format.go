package logging

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// logTimeLayout is shared by the console and JSON handlers. Claims, sweeps and
// completions often land within one second of each other.
const logTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatLogTime(t time.Time) string {
	return t.UTC().Format(logTimeLayout)
}

// formatLogDuration rounds to milliseconds; sub-millisecond noise from
// processing_time and timeout attrs only makes lines harder to scan.
func formatLogDuration(d time.Duration) string {
	if d > time.Millisecond || d < -time.Millisecond {
		d = d.Round(time.Millisecond)
	}
	return d.String()
}

// attrString renders a value for the console subject and message slots,
// where quoting is never applied.
func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return formatValue(v)
	}
}

// formatValue renders a value for key=value console output.
func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return formatLogDuration(v.Duration())
	case slog.KindTime:
		return formatLogTime(v.Time())
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quoteIfNeeded(err.Error())
		}
		return quoteIfNeeded(fmt.Sprint(v.Any()))
	default:
		return quoteIfNeeded(v.String())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if r <= ' ' || r == '=' || r == '"' {
			return strconv.Quote(s)
		}
	}
	return s
}
