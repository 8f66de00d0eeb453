package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

// LogBuild configures a zerolog-backed Logger, typically writing to a file
// so an editing session leaves a persistent engine log behind.
type LogBuild struct {
	writer io.Writer
	path   string
}

// LogData is the built logger. It satisfies Logger.
type LogData struct {
	writer  io.Writer
	LogFile *os.File
	Logger  zerolog.Logger
}

func NewBuild() *LogBuild {
	return &LogBuild{}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	logData.writer = build.writer
	if logData.writer == nil {
		logData.writer = os.Stdout
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		logData.writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(logData.writer).With().Timestamp().Logger()
	return
}

func (data *LogData) Error(msg string, args ...any) {
	emit(data.Logger.Error(), msg, args)
}

func (data *LogData) Warn(msg string, args ...any) {
	emit(data.Logger.Warn(), msg, args)
}

func (data *LogData) Info(msg string, args ...any) {
	emit(data.Logger.Info(), msg, args)
}

func (data *LogData) Debug(msg string, args ...any) {
	emit(data.Logger.Debug(), msg, args)
}

func emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, args[i+1])
	}
	ev.Msg(msg)
}
