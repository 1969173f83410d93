package ApiUtils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/chendingplano/dataviewer/api/ApiTypes"
	ljack "gopkg.in/natefinch/lumberjack.v2"
)

// ansiRegex matches ANSI escape codes (color codes, cursor movement, etc.)
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

var (
	fileLogOnce   sync.Once
	fileLogMu     sync.Mutex
	FileLogOutput io.Writer = os.Stdout // combined console + file writer
	FileWriter    io.Writer             // file writer only

	consoleOutput io.Writer = os.Stdout
)

// SetConsoleOutput sends console logs to w instead of stdout. It must run
// before InitFileLogging and before the first logger is created.
func SetConsoleOutput(w io.Writer) {
	fileLogMu.Lock()
	defer fileLogMu.Unlock()
	consoleOutput = w
	if FileWriter == nil {
		FileLogOutput = w
	}
}

// plainWriter strips color codes before handing bytes to the file writer,
// so the pretty handler can share one output with the rotating file.
type plainWriter struct {
	w io.Writer
}

func (p plainWriter) Write(b []byte) (int, error) {
	if _, err := p.w.Write(ansiRegex.ReplaceAll(b, nil)); err != nil {
		return 0, err
	}
	// Return original length to satisfy io.Writer contract
	return len(b), nil
}

// InitFileLogging sets FileLogOutput to the console plus a lumberjack-rotated
// app.log under LOG_FILE_DIR. Without LOG_FILE_DIR, or when FILE_LOGGER is
// "nofilelogger", logs go to the console only. Only the first call has effect.
func InitFileLogging(procLog ApiTypes.ProcLogDef, loc string) error {
	var initErr error
	fileLogOnce.Do(func() {
		fileLogMu.Lock()
		defer fileLogMu.Unlock()

		if os.Getenv("FILE_LOGGER") == "nofilelogger" {
			slog.Warn("No file logger used (DVW_LWT_031)", "loc", loc)
			return
		}

		logFileDir := os.Getenv("LOG_FILE_DIR")
		if len(logFileDir) == 0 {
			return
		}

		logFileDir, err := ExpandPath(logFileDir)
		if err != nil {
			initErr = fmt.Errorf("failed to expand LOG_FILE_DIR (DVW_LWT_041): %w", err)
			return
		}

		if err := os.MkdirAll(logFileDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create log directory %s (DVW_LWT_046): %w", logFileDir, err)
			return
		}

		maxSizeMB := procLog.FileMaxSizeInMB
		if maxSizeMB < 10 || maxSizeMB > 5000 {
			slog.Warn("Invalid max_size_in_mb. Default to 500 (DVW_LWT_052)", "value", maxSizeMB)
			maxSizeMB = 500
		}

		numFiles := procLog.NumLogFiles
		if numFiles < 2 || numFiles > 50 {
			slog.Warn("Invalid num_log_files. Defaults to 20 (DVW_LWT_058)", "value", numFiles)
			numFiles = 20
		}

		maxAge := procLog.MaxAgeInDays
		if maxAge < 1 || maxAge > 90 {
			maxAge = 20
		}

		filename := filepath.Join(logFileDir, "app.log")
		FileWriter = &ljack.Logger{
			Filename:   filename,
			MaxSize:    maxSizeMB, // megabytes
			MaxBackups: numFiles,
			MaxAge:     maxAge, // days
			Compress:   procLog.NeedCompress,
		}

		slog.Info("Create lumberjack (DVW_LWT_076)",
			"file", filename,
			"max_size", maxSizeMB,
			"num_files", numFiles)
		FileLogOutput = io.MultiWriter(consoleOutput, plainWriter{w: FileWriter})
	})
	return initErr
}

// LogOutput returns the writer loggers should write to.
func LogOutput() io.Writer {
	fileLogMu.Lock()
	defer fileLogMu.Unlock()
	return FileLogOutput
}

// CloseFileLogging closes the rotating file, if one was opened.
func CloseFileLogging() {
	fileLogMu.Lock()
	defer fileLogMu.Unlock()
	if closer, ok := FileWriter.(io.Closer); ok {
		closer.Close()
	}
}
