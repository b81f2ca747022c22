package logger

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerService owns the process log: a zap JSON logger writing to stdout and
// to a size-rotated file, with old files zipped after the retention period.
type LoggerService struct {
	Config        map[string]interface{}
	mu            sync.Mutex
	file          *os.File
	stopCh        chan struct{}
	wg            sync.WaitGroup
	currentLog    string
	maxFileBytes  int64
	retentionDays int
	folderPath    string
	level         zapcore.Level
	zl            *zap.Logger
}

func NewLoggerService(config map[string]interface{}) *LoggerService {
	if config == nil {
		config = map[string]interface{}{}
	}
	folder, _ := config["folder_path"].(string)
	if folder == "" {
		folder = "./logs"
	}
	level := zapcore.InfoLevel
	if s, ok := config["level"].(string); ok {
		_ = level.Set(s)
	}
	return &LoggerService{
		Config:        config,
		stopCh:        make(chan struct{}),
		maxFileBytes:  int64(toInt(config["max_file_mb"])) * 1024 * 1024,
		retentionDays: toInt(config["retention_days"]),
		folderPath:    folder,
		level:         level,
	}
}

func toInt(v interface{}) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}

func (l *LoggerService) Name() string {
	return "logger"
}

func (l *LoggerService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.folderPath, 0o755); err != nil {
		return err
	}
	logFile := l.nextLogFileName()
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file = file
	l.currentLog = logFile

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(&fileSink{svc: l}), l.level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), l.level),
	)
	l.zl = zap.New(core, zap.AddCaller())
	SetGlobal(l.zl)
	l.zl.Info("logger started", zap.String("file", logFile))

	l.wg.Add(1)
	go l.backgroundWorker()
	return nil
}

func (l *LoggerService) Stop() error {
	close(l.stopCh)
	l.wg.Wait()
	if l.zl != nil {
		l.zl.Info("logger stopping")
		_ = l.zl.Sync()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Logger returns the service's zap logger, or the global one before Start.
func (l *LoggerService) Logger() *zap.Logger {
	if l.zl == nil {
		return L()
	}
	return l.zl
}

// fileSink routes writes to whichever file is current, so rotation never
// needs to rebuild the zap core.
type fileSink struct {
	svc *LoggerService
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	if s.svc.file == nil {
		return len(p), nil
	}
	return s.svc.file.Write(p)
}

func (s *fileSink) Sync() error {
	s.svc.mu.Lock()
	defer s.svc.mu.Unlock()
	if s.svc.file == nil {
		return nil
	}
	return s.svc.file.Sync()
}

func (l *LoggerService) nextLogFileName() string {
	timestamp := time.Now().Format("20060102_150405.000")
	return filepath.Join(l.folderPath, fmt.Sprintf("app_%s.log", timestamp))
}

func (l *LoggerService) rotateIfNeeded() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil || l.maxFileBytes <= 0 {
		return nil
	}
	info, err := l.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < l.maxFileBytes {
		return nil
	}
	newLog := l.nextLogFileName()
	file, err := os.OpenFile(newLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file.Close()
	l.file = file
	l.currentLog = newLog
	return nil
}

func (l *LoggerService) backgroundWorker() {
	defer l.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	retentionTicker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	defer retentionTicker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.rotateIfNeeded(); err != nil {
				l.Logger().Warn("log rotation failed", zap.Error(err))
			}
		case <-retentionTicker.C:
			l.zipAndCleanOldLogs(time.Now())
		}
	}
}

// zipAndCleanOldLogs moves .log files older than the retention period into a
// dated zip archive.
func (l *LoggerService) zipAndCleanOldLogs(now time.Time) {
	if l.retentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -l.retentionDays)
	files, err := os.ReadDir(l.folderPath)
	if err != nil {
		return
	}
	var old []string
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".log" {
			continue
		}
		fullPath := filepath.Join(l.folderPath, f.Name())
		if fullPath == l.currentLog {
			continue
		}
		info, err := os.Stat(fullPath)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		old = append(old, fullPath)
	}
	if len(old) == 0 {
		return
	}

	zipName := filepath.Join(l.folderPath, fmt.Sprintf("logs_%s.zip", now.Format("20060102_150405")))
	zipFile, err := os.Create(zipName)
	if err != nil {
		return
	}
	defer zipFile.Close()
	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	for _, fullPath := range old {
		w, err := zipWriter.Create(filepath.Base(fullPath))
		if err != nil {
			continue
		}
		src, err := os.Open(fullPath)
		if err != nil {
			continue
		}
		_, copyErr := io.Copy(w, src)
		src.Close()
		if copyErr == nil {
			os.Remove(fullPath)
		}
	}
}

// LogAudit records an operator-visible action.
func (l *LoggerService) LogAudit(msg string, fields ...zap.Field) {
	l.Logger().Info(msg, append(fields, zap.Bool("audit", true))...)
}

var (
	globalMu     sync.RWMutex
	global       = zap.NewNop()
	GlobalLogger *LoggerService
)

func SetGlobalLogger(l *LoggerService) {
	GlobalLogger = l
}

func SetGlobal(zl *zap.Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = zl
}

// L returns the process-wide logger. It is a no-op logger until the
// LoggerService starts.
func L() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Audit logs through GlobalLogger when one is registered.
func Audit(msg string, fields ...zap.Field) {
	if GlobalLogger != nil {
		GlobalLogger.LogAudit(msg, fields...)
		return
	}
	L().Info(msg, append(fields, zap.Bool("audit", true))...)
}
