package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// ETLLogger представляет логгер для ETL-процесса
type ETLLogger struct {
	entry *logrus.Entry
	file  *os.File
}

// NewETLLogger создает логгер, пишущий в stdout и в файл etl_<дата>.log в каталоге dir
func NewETLLogger(dir, level string) (*ETLLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог логов %s: %w", dir, err)
	}

	logFileName := filepath.Join(dir, fmt.Sprintf("etl_%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть или создать файл лога: %w", err)
	}

	logger, err := NewETLLoggerWithWriter(io.MultiWriter(os.Stdout, file), level)
	if err != nil {
		file.Close()
		return nil, err
	}
	logger.file = file

	return logger, nil
}

// NewETLLoggerWithWriter создает логгер поверх произвольного writer
func NewETLLoggerWithWriter(w io.Writer, level string) (*ETLLogger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("неизвестный уровень логирования %q: %w", level, err)
	}

	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})

	return &ETLLogger{entry: logrus.NewEntry(log)}, nil
}

// Discard возвращает логгер без вывода
func Discard() *ETLLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &ETLLogger{entry: logrus.NewEntry(log)}
}

// WithField возвращает дочерний логгер с дополнительным полем
func (l *ETLLogger) WithField(key string, value interface{}) *ETLLogger {
	return &ETLLogger{entry: l.entry.WithField(key, value)}
}

// Close закрывает файл лога, если он был открыт
func (l *ETLLogger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Info логирует информационное сообщение
func (l *ETLLogger) Info(format string, v ...interface{}) {
	l.entry.Infof(format, v...)
}

// Warn логирует предупреждение
func (l *ETLLogger) Warn(format string, v ...interface{}) {
	l.entry.Warnf(format, v...)
}

// Error логирует сообщение об ошибке
func (l *ETLLogger) Error(format string, v ...interface{}) {
	l.entry.Errorf(format, v...)
}

// Debug логирует отладочное сообщение
func (l *ETLLogger) Debug(format string, v ...interface{}) {
	l.entry.Debugf(format, v...)
}

// LogPhaseStart логирует начало фазы
func (l *ETLLogger) LogPhaseStart(phase, description string) {
	l.entry.WithField("phase", phase).Infof("Начало фазы %s: %s", phase, description)
}

// LogPhaseEnd логирует завершение фазы
func (l *ETLLogger) LogPhaseEnd(phase string, ok bool, details string) {
	e := l.entry.WithField("phase", phase)
	if ok {
		e.Infof("Фаза %s завершена: %s", phase, details)
		return
	}
	e.Errorf("Фаза %s завершилась с ошибкой: %s", phase, details)
}

// LogTableStats логирует статистику по таблице
func (l *ETLLogger) LogTableStats(table string, read, written, errors int) {
	l.entry.WithFields(logrus.Fields{
		"table":   table,
		"read":    read,
		"written": written,
		"errors":  errors,
	}).Infof("Таблица %s: прочитано %d, записано %d, ошибок %d", table, read, written, errors)
}

// LogValidation логирует результат проверки качества
func (l *ETLLogger) LogValidation(check string, passed bool, detail string) {
	e := l.entry.WithField("check", check)
	if passed {
		e.Infof("Проверка %s пройдена: %s", check, detail)
		return
	}
	e.Warnf("Проверка %s не пройдена: %s", check, detail)
}
