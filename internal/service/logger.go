package service

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("Segment closed", zap.Int("segment_id", id))
var Logger = zap.NewNop()

// InitLogger 初始化高性能的 Zap 日志，level 为空时使用 info
func InitLogger(level string) {
	// 配置 Zap 日志
	config := zap.NewProductionConfig()

	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			log.Fatalf("Invalid log level %q: %v", level, err)
		}
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	// 如果需要写入文件，可以修改 OutputPaths:
	// config.OutputPaths = []string{"stdout", "log/app.log"}

	var err error
	Logger, err = config.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}

// NewNopLogger 测试中使用的空日志
func NewNopLogger() *zap.Logger {
	return zap.NewNop()
}
