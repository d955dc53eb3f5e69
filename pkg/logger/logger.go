package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sync"
	"time"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	maxLogSize int64 = 100000 // 100 kbite
	logFile    *os.File
	logMutex   sync.Mutex
	debugMode  = os.Getenv("CASINO_DEBUG") != ""
)

// Init directs log output to the given file and starts size-based rotation.
// With an empty path logs stay on stderr.
func Init(path string) error {
	if path == "" {
		return nil
	}

	logMutex.Lock()
	defer logMutex.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logFile = f
	log.SetOutput(io.MultiWriter(f))

	go func() {
		for {
			time.Sleep(1 * time.Hour)
			if err := rotateLogIfNeeded(); err != nil {
				log.Printf("Error rotating log: %v", err)
			}
		}
	}()

	return nil
}

// Close flushes and closes the log file if one was opened.
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		log.SetOutput(os.Stderr)
	}
}

// If size of the log file exceeds the limit, rotates it
func rotateLogIfNeeded() error {
	logMutex.Lock()
	defer logMutex.Unlock()

	if logFile == nil {
		return nil
	}

	info, err := logFile.Stat()
	if err != nil {
		return fmt.Errorf("error getting file info: %w", err)
	}
	if info.Size() <= maxLogSize {
		return nil
	}

	name := logFile.Name()
	logFile.Close()
	newName := fmt.Sprintf("%s.%s.old", name, time.Now().Format("2006-01-02_15:04"))
	if err := os.Rename(name, newName); err != nil {
		return fmt.Errorf("error renaming log file: %w", err)
	}

	newFile, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("error creating new log file: %w", err)
	}

	logFile = newFile
	log.SetOutput(io.MultiWriter(newFile))
	log.Printf("Rotated log file")
	return nil
}

func (l LogLevel) String() string {
	return [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}[l]
}

func logWithLevel(level LogLevel, format string, v ...interface{}) {
	_, f, l, _ := runtime.Caller(2)
	fullFuncName := fmt.Sprintf("%s:%d", f, l)
	logMsg := fmt.Sprintf(format, v...)
	log.Printf("[%s]\n%s: %s", level, fullFuncName, logMsg)
}

func WrapError(err error, message string) error {
	_, f, l, _ := runtime.Caller(1)
	if message != "" {
		return fmt.Errorf("\n%s:%d: %s: %w", f, l, message, err)
	}
	return fmt.Errorf("\n%s:%d: %w", f, l, err)
}

func Debug(format string, v ...interface{}) {
	if debugMode {
		logWithLevel(DEBUG, format, v...)
	}
}

func Info(format string, v ...interface{}) {
	logWithLevel(INFO, format, v...)
}

func Warn(format string, v ...interface{}) {
	logWithLevel(WARN, format, v...)
}

func Error(format string, v ...interface{}) {
	logWithLevel(ERROR, format, v...)
}

func Fatal(format string, v ...interface{}) {
	logWithLevel(FATAL, format, v...)
	os.Exit(1)
}
