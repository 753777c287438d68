package zerolog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/goterm/term"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New builds a zerolog-backed logger. With jsonFormat the raw JSON event
// stream goes to stdout; otherwise a colored console writer is installed.
func New(level, timeLayout string, colored, jsonFormat bool) (*Adapter, error) {
	logMode, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(logMode)

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		NoColor:    !colored,
		TimeFormat: timeLayout,
	}

	if !jsonFormat {
		output.FormatLevel = formatLevel
		output.FormatMessage = formatMessage
		output.FormatCaller = formatCaller
		output.FormatTimestamp = func(i any) string {
			return formatTimestamp(i, timeLayout)
		}
	}

	l := log.
		Output(output).
		With().
		CallerWithSkipFrameCount(3).
		Logger()

	return &Adapter{&l}, nil
}

func formatLevel(i any) string {
	level, ok := i.(string)
	if !ok {
		return term.Whitef("[???]")
	}

	switch level {
	case zerolog.LevelDebugValue:
		return term.Cyanf("[DBG]")
	case zerolog.LevelInfoValue:
		return term.Greenf("[INF]")
	case zerolog.LevelWarnValue:
		return term.Yellowf("[WRN]")
	case zerolog.LevelErrorValue:
		return term.Redf("[ERR]")
	case zerolog.LevelFatalValue:
		return term.Redf("[FTL]")
	case zerolog.LevelPanicValue:
		return term.Redf("[PNC]")
	default:
		return term.Whitef("[???]")
	}
}

func formatMessage(i any) string {
	const width = 72

	msg, ok := i.(string)
	if !ok || msg == "" {
		return ">"
	}

	if len(msg) > width {
		msg = msg[:width]
	} else {
		msg += strings.Repeat(" ", width-len(msg))
	}

	return term.Whitef("> %s", msg)
}

func formatCaller(i any) string {
	const fileWidth = 16

	fname, ok := i.(string)
	if !ok || fname == "" {
		return ""
	}

	caller := filepath.Base(fname)
	parts := strings.Split(caller, ":")
	if len(parts) != 2 {
		return caller
	}

	file, line := parts[0], parts[1]
	if len(file) > fileWidth {
		file = file[:fileWidth]
	} else {
		file = fmt.Sprintf("%-*s", fileWidth, file)
	}

	return term.Yellowf("[%s:%4s]", file, line)
}

func formatTimestamp(i any, timeLayout string) string {
	strTime, ok := i.(string)
	if !ok {
		return term.Cyanf("[%s]", i)
	}

	if ts, err := time.ParseInLocation(time.RFC3339, strTime, time.Local); err == nil {
		strTime = ts.In(time.Local).Format(timeLayout)
	}

	return term.Cyanf("[%s]", strTime)
}
