package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// Logger is the leveled, key/value logger used across tonesync.
// Arguments after msg are alternating keys and values.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func New() *LogBuild {
	return &LogBuild{level: zerolog.InfoLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) WithLevel(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	writer := build.writer
	if writer == nil {
		writer = os.Stderr
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return
}

// Leveled wraps the built zerolog logger in the Logger interface.
func (logData *LogData) Leveled() Logger {
	return &zerologLogger{l: logData.Logger}
}

// Close releases the log file if the logger was built from a path.
func (logData *LogData) Close() error {
	if logData.LogFile == nil {
		return nil
	}
	return logData.LogFile.Close()
}

// FromZerolog adapts an existing zerolog logger.
func FromZerolog(l zerolog.Logger) Logger {
	return &zerologLogger{l: l}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zerologLogger{l: zerolog.Nop()}
}

// With returns a Logger that adds the given key/value pairs to every entry.
// Loggers that are not backed by zerolog are returned unchanged.
func With(l Logger, args ...any) Logger {
	z, ok := l.(*zerologLogger)
	if !ok {
		return l
	}
	return &zerologLogger{l: z.l.With().Fields(pairs(args)).Logger()}
}

type zerologLogger struct {
	l zerolog.Logger
}

func (z *zerologLogger) Error(msg string, args ...any) {
	z.l.Error().Fields(pairs(args)).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, args ...any) {
	z.l.Warn().Fields(pairs(args)).Msg(msg)
}

func (z *zerologLogger) Info(msg string, args ...any) {
	z.l.Info().Fields(pairs(args)).Msg(msg)
}

func (z *zerologLogger) Debug(msg string, args ...any) {
	z.l.Debug().Fields(pairs(args)).Msg(msg)
}

// pairs turns alternating key/value arguments into a field map.
// A trailing key without a value is logged under "!BADKEY".
func pairs(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		fields[key] = args[i+1]
	}
	return fields
}
