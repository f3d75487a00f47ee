package util

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Emitter receives every formatted log line that passes the level filter.
// The application installs one to tee process logs into the shared log ring.
type Emitter func(level LogLevel, message string)

// Level and emitter are read from every goroutine that logs, including the
// metrics server, so both live behind atomics.
var (
	currentLevel atomic.Int32
	emitter      atomic.Pointer[Emitter]
)

func init() {
	currentLevel.Store(int32(LogLevelInfo))
}

func SetLevel(level LogLevel) {
	currentLevel.Store(int32(level))
}

func Level() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetEmitter installs (or, with nil, removes) the shared-log tee.
func SetEmitter(e Emitter) {
	if e == nil {
		emitter.Store(nil)
		return
	}
	emitter.Store(&e)
}

func emit(level LogLevel, format string, v ...interface{}) {
	if e := emitter.Load(); e != nil {
		(*e)(level, fmt.Sprintf(format, v...))
	}
}

func Debug(format string, v ...interface{}) {
	if Level() <= LogLevelDebug {
		log.Printf("[DEBUG] "+format, v...)
		emit(LogLevelDebug, format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if Level() <= LogLevelInfo {
		log.Printf("[INFO] "+format, v...)
		emit(LogLevelInfo, format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if Level() <= LogLevelWarn {
		log.Printf("[WARN] "+format, v...)
		emit(LogLevelWarn, format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if Level() <= LogLevelError {
		log.Printf("[ERROR] "+format, v...)
		emit(LogLevelError, format, v...)
	}
}

func Fatal(format string, v ...interface{}) {
	log.Printf("[FATAL] "+format, v...)
	os.Exit(1)
}
