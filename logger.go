package kilat

import (
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilathq/kilat/log"
)

// logger is the package-wide logger the server responder and client
// requester write through.
var logger *log.Logger

// console is kept so SetLogFile can redirect its Out without rebuilding
// the logger.
var console *log.ConsoleWriter

func init() {
	console = log.DefaultConsoleWriter()
	console.Out = os.Stdout
	logger = log.New(console, log.InfoLevel)
	log.SetOutput(console)
	log.SetLevel(log.InfoLevel)
}

// SetLogLevel adjusts the package-wide logger's minimum level.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
	log.SetLevel(level)
}

// SetLogFile directs log output to both stdout and a rotating file at
// path, rolled over at maxSizeMB with up to maxBackups kept.
func SetLogFile(path string, maxSizeMB, maxBackups int) {
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	console.Out = io.MultiWriter(os.Stdout, rotator)
}

func displayStartupMessage(addr string) {
	logger.Info().Msgf("kilat: listening on %s", addr)
}
