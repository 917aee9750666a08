// internal/logger/logger.go
package logger

import (
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	LogFile    string
	MaxSize    int  // мегабайты
	MaxAge     int  // дни
	MaxBackups int  // количество файлов
	Compress   bool // сжимать ротированные файлы
	Debug      bool
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		LogFile:    "logs/bot.log",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}

func (c Config) level() zapcore.Level {
	if c.Debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// fileCore пишет JSON в ротируемый файл. Пустой LogFile отключает файл.
func (c Config) fileCore() (zapcore.Core, *lumberjack.Logger) {
	if c.LogFile == "" {
		return nil, nil
	}
	rotator := &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), c.level()), rotator
}

// New создает логгер: цветная консоль плюс JSON файл с ротацией.
// Возвращаемая функция закрывает файл.
func New(cfg Config) (*zap.Logger, func() error) {
	cores := []zapcore.Core{
		zapcore.NewCore(PrettyEncoder(), zapcore.Lock(os.Stdout), cfg.level()),
	}
	return build(cfg, cores)
}

// NewWithBuffer создает логгер для консольного UI: вместо stdout записи
// уходят в кольцевой буфер, чтобы не ломать экран.
func NewWithBuffer(cfg Config, buf *LogBuffer) (*zap.Logger, func() error) {
	cores := []zapcore.Core{
		zapcore.NewCore(bufferEncoder(), zapcore.AddSync(buf), cfg.level()),
	}
	return build(cfg, cores)
}

func build(cfg Config, cores []zapcore.Core) (*zap.Logger, func() error) {
	closeFn := func() error { return nil }
	if core, rotator := cfg.fileCore(); core != nil {
		cores = append(cores, core)
		closeFn = rotator.Close
	}

	logger := zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	return logger, closeFn
}

// WithOperation создает логгер для конкретной операции
func WithOperation(l *zap.Logger, operation string) *zap.Logger {
	return l.With(
		zap.String("operation", operation),
		zap.String("correlation_id", uuid.New().String()),
		zap.Time("start_time", time.Now().UTC()),
	)
}

// WithChat добавляет идентификатор чата
func WithChat(l *zap.Logger, chatID int64) *zap.Logger {
	return l.With(zap.Int64("chat_id", chatID))
}

// Sync игнорирует ошибки синхронизации терминала.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	if err != nil && (err.Error() == "sync /dev/stdout: invalid argument" ||
		err.Error() == "sync /dev/stderr: inappropriate ioctl for device" ||
		err.Error() == "sync /dev/stdout: inappropriate ioctl for device") {
		return nil
	}
	return err
}
