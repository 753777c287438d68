package zerolog

import (
	"fmt"

	"github.com/candlebot/candlebot/pkg/logger"
	"github.com/rs/zerolog"
)

// Adapter wraps a zerolog.Logger behind the logger.Logger facade.
type Adapter struct {
	*zerolog.Logger
}

func NewAdapter(l *zerolog.Logger) *Adapter {
	return &Adapter{l}
}

func (a *Adapter) GetLevel() logger.Level {
	return toLevel(a.Logger.GetLevel())
}

func (a *Adapter) SetLevel(level logger.Level) {
	zerolog.SetGlobalLevel(toZerologLevel(level))
}

func (a *Adapter) Debug(args ...any) {
	a.Logger.Debug().Msg(fmt.Sprint(args...))
}

func (a *Adapter) Info(args ...any) {
	a.Logger.Info().Msg(fmt.Sprint(args...))
}

func (a *Adapter) Warn(args ...any) {
	a.Logger.Warn().Msg(fmt.Sprint(args...))
}

func (a *Adapter) Error(args ...any) {
	a.Logger.Error().Msg(fmt.Sprint(args...))
}

func (a *Adapter) Fatal(args ...any) {
	a.Logger.Fatal().Msg(fmt.Sprint(args...))
}

func (a *Adapter) Debugf(format string, args ...any) {
	a.Logger.Debug().Msgf(format, args...)
}

func (a *Adapter) Infof(format string, args ...any) {
	a.Logger.Info().Msgf(format, args...)
}

func (a *Adapter) Warnf(format string, args ...any) {
	a.Logger.Warn().Msgf(format, args...)
}

func (a *Adapter) Errorf(format string, args ...any) {
	a.Logger.Error().Msgf(format, args...)
}

func (a *Adapter) Fatalf(format string, args ...any) {
	a.Logger.Fatal().Msgf(format, args...)
}

func (a *Adapter) WithError(err error) logger.Logger {
	l := a.With().Err(err).Logger()
	return &Adapter{&l}
}

func (a *Adapter) WithField(key string, value any) logger.Logger {
	l := a.With().Interface(key, value).Logger()
	return &Adapter{&l}
}

func (a *Adapter) WithFields(fields map[string]any) logger.Logger {
	l := a.With().Fields(fields).Logger()
	return &Adapter{&l}
}

func toLevel(level zerolog.Level) logger.Level {
	switch level {
	case zerolog.Disabled:
		return logger.Disabled
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return logger.DebugLevel
	case zerolog.InfoLevel:
		return logger.InfoLevel
	case zerolog.WarnLevel:
		return logger.WarnLevel
	case zerolog.ErrorLevel:
		return logger.ErrorLevel
	default:
		return logger.FatalLevel
	}
}

func toZerologLevel(level logger.Level) zerolog.Level {
	switch level {
	case logger.Disabled:
		return zerolog.Disabled
	case logger.DebugLevel:
		return zerolog.DebugLevel
	case logger.InfoLevel:
		return zerolog.InfoLevel
	case logger.WarnLevel:
		return zerolog.WarnLevel
	case logger.ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}
