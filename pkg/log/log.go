// Package log 是基于 zap 的全局日志门面。
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 在 Init 之前使用空日志器，测试与工具代码无需初始化即可调用。
var sugar = zap.NewNop().Sugar()

// logFileName 是 outputPath 目录下的日志文件名。
const logFileName = "docweave.log"

// Init 按级别、格式（json / console）与输出目录初始化全局日志器。
// 未知级别按 info 处理；outputPath 非空时同时写文件与 stdout。
func Init(level, format, outputPath string) error {
	logger, err := build(level, format, outputPath)
	if err != nil {
		return err
	}
	sugar = logger.Sugar()
	return nil
}

func build(level, format, outputPath string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if strings.EqualFold(format, "console") {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
	}
	zapConfig.Level = logLevel

	zapConfig.OutputPaths = []string{"stdout"}
	if outputPath != "" {
		if err := os.MkdirAll(outputPath, 0o755); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, filepath.Join(outputPath, logFileName))
	}

	logger, err := zapConfig.Build(zap.Fields(zap.String("service", "docweave")))
	if err != nil {
		return nil, fmt.Errorf("构建日志器失败: %w", err)
	}
	return logger, nil
}

// Use 替换全局日志器并返回恢复函数，测试里配合 zaptest/observer 断言日志。
func Use(logger *zap.Logger) (restore func()) {
	prev := sugar
	sugar = logger.Sugar()
	return func() { sugar = prev }
}

func Debugf(template string, args ...interface{}) {
	sugar.Debugf(template, args...)
}

func Info(msg string) {
	sugar.Info(msg)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 使用键值对记录结构化日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error 记录一条 error 日志，err 作为 "error" 字段输出。
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// Fatal 记录日志后以状态码 1 退出。
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 刷新缓冲的日志。
func Sync() {
	_ = sugar.Sync()
}
