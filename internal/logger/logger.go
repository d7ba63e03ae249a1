package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level orders log severities.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps "DEBUG", "info", ... to a Level. Unknown names map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

var minLevel atomic.Int32

func init() {
	minLevel.Store(int32(LevelInfo))
}

// SetLevel changes the minimum level printed by Debugf/Infof/Warnf/Errorf.
func SetLevel(l Level) {
	minLevel.Store(int32(l))
}

// Enabled reports whether messages at l are printed.
func Enabled(l Level) bool {
	return l >= Level(minLevel.Load())
}

func logf(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	// calldepth 3: logf -> Infof -> caller
	log.Output(3, "["+l.String()+"] "+fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

// Rotator implements io.Writer and handles log file rotation based on size.
type Rotator struct {
	Filename   string
	MaxSize    int64 // Bytes
	MaxBackups int
	file       *os.File
	size       int64
	mu         sync.Mutex
}

// Setup routes the standard logger to stderr and, when filename is set, a
// rotating file. Stdout is left to command output.
// It returns a close function for the file.
func Setup(level, filename string, maxSizeMB int64, maxBackups int) func() error {
	SetLevel(ParseLevel(level))
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if filename == "" {
		log.SetOutput(os.Stderr)
		return func() error { return nil }
	}

	rotator := &Rotator{
		Filename:   filename,
		MaxSize:    maxSizeMB * 1024 * 1024,
		MaxBackups: maxBackups,
	}
	if err := rotator.openExistingOrNew(); err != nil {
		log.Printf("[WARN] failed to open log file, using stderr only: %v", err)
		return func() error { return nil }
	}

	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator.Close
}

func (r *Rotator) openExistingOrNew() error {
	info, err := os.Stat(r.Filename)
	if os.IsNotExist(err) {
		return r.openNew()
	}
	if err != nil {
		return err
	}

	f, err := os.OpenFile(r.Filename, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = info.Size()
	return nil
}

func (r *Rotator) openNew() error {
	f, err := os.OpenFile(r.Filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	r.file = f
	r.size = 0
	return nil
}

// Write satisfies io.Writer, rotating first when p would push the file past MaxSize.
func (r *Rotator) Write(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err = r.openExistingOrNew(); err != nil {
			return 0, err
		}
	}

	if r.MaxSize > 0 && r.size+int64(len(p)) > r.MaxSize {
		if err := r.rotate(); err != nil {
			// Keep logging into whatever is open rather than dropping the line.
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err = r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the current file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// rotate shifts name.N -> name.N+1 ... name -> name.1 and opens a fresh file.
func (r *Rotator) rotate() error {
	if r.file != nil {
		r.file.Close()
	}

	for i := r.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", r.Filename, i)
		newPath := fmt.Sprintf("%s.%d", r.Filename, i+1)
		if _, err := os.Stat(oldPath); os.IsNotExist(err) {
			continue
		}
		os.Rename(oldPath, newPath)
	}

	if r.MaxBackups > 0 {
		if _, err := os.Stat(r.Filename); err == nil {
			os.Rename(r.Filename, r.Filename+".1")
		}
	}

	return r.openNew()
}
