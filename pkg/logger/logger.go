// Package logger provides the process-wide structured logger, a
// thin wrapper over zap that keeps the project's original
// Debug/Info/Warn/Error/Success/Section/Banner call shape.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels, kept for SetLevel callers that predate the zap switch.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelSuccess
)

var (
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	atom   zap.AtomicLevel
)

func init() {
	atom = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg := zap.NewProductionConfig()
	cfg.Level = atom
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	built, err := cfg.Build()
	if err != nil {
		built = zap.NewNop()
	}
	base = built
	sugar = base.Sugar()
}

// SetLevel sets the minimum log level, mapping the legacy int levels
// onto zap's.
func SetLevel(level int) {
	switch level {
	case LevelDebug:
		atom.SetLevel(zap.DebugLevel)
	case LevelWarn:
		atom.SetLevel(zap.WarnLevel)
	case LevelError:
		atom.SetLevel(zap.ErrorLevel)
	default:
		atom.SetLevel(zap.InfoLevel)
	}
}

// SetLevelName sets the level from a config string (LOG_LEVEL).
func SetLevelName(name string) {
	switch name {
	case "debug":
		SetLevel(LevelDebug)
	case "warn":
		SetLevel(LevelWarn)
	case "error":
		SetLevel(LevelError)
	default:
		SetLevel(LevelInfo)
	}
}

// Sugared returns the process-wide sugared logger, for packages that
// want to attach structured fields (e.g. per-connection peer/trace
// ids) via .With(...).
func Sugared() *zap.SugaredLogger {
	return sugar
}

func Debug(format string, args ...interface{}) { sugar.Debugf(format, args...) }
func Info(format string, args ...interface{})  { sugar.Infof(format, args...) }
func Warn(format string, args ...interface{})  { sugar.Warnf(format, args...) }
func Error(format string, args ...interface{}) { sugar.Errorf(format, args...) }
func Fatal(format string, args ...interface{}) { sugar.Fatalf(format, args...) }

// Success logs at info level with a distinguishing prefix; zap has no
// separate success level.
func Success(format string, args ...interface{}) {
	sugar.Infof("OK: "+format, args...)
}

// InfoCyan is kept for call sites that wanted a highlighted info line;
// zap's console encoder does not color by call site, so this is
// equivalent to Info.
func InfoCyan(format string, args ...interface{}) {
	sugar.Infof(format, args...)
}

// Section prints a section header directly to stdout, unchanged from
// the original banner-style console output.
func Section(title string) {
	border := "═══════════════════════════════════════════════════════════"
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-57s ║\n", title)
	fmt.Printf("╚%s╝\n\n", border)
}

// Banner prints the application banner.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗ ███████╗██████╗ ██████╗  ██████╗ ██╗  ██╗██████╗ ║
║   ██╔══██╗██╔════╝██╔══██╗██╔══██╗██╔═══██╗██║ ██╔╝██╔══██╗║
║   ██████╔╝█████╗  ██║  ██║██████╔╝██║   ██║█████╔╝ ██║  ██║║
║   ██╔══██╗██╔══╝  ██║  ██║██╔══██╗██║   ██║██╔═██╗ ██║  ██║║
║   ██████╔╝███████╗██████╔╝██║  ██║╚██████╔╝██║  ██╗██████╔╝║
║   ╚═════╝ ╚══════╝╚═════╝ ╚═╝  ╚═╝ ╚═════╝ ╚═╝  ╚═╝╚═════╝ ║
║                                                           ║
║              %-37s║
║                    Version %-7s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, title, version)
}
