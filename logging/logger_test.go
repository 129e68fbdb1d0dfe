package logging

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
	"time"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

// TestFormatValue 测试值格式化
func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "字符串", value: "test", want: "test"},
		{name: "错误", value: errors.New("error message"), want: "error message"},
		{name: "整数", value: 123, want: "123"},
		{name: "布尔值", value: true, want: "true"},
		{name: "时间", value: ts, want: "2024-01-02T03:04:05Z"},
		{name: "时长", value: 1500 * time.Millisecond, want: "1.5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.value); got != tt.want {
				t.Errorf("formatValue() = %s, 期望 %s", got, tt.want)
			}
		})
	}
}

// TestStdLogger_Levels 测试各级别输出
func TestStdLogger_Levels(t *testing.T) {
	buf := captureLog(t)
	logger := NewStdLogger("test")
	ctx := context.Background()

	logger.Debug(ctx, "debug message", String("key", "value"))
	logger.Info(ctx, "info message", Int("count", 123))
	logger.Warn(ctx, "warn message", Bool("critical", true))
	logger.Error(ctx, "error message", Error(errors.New("test error")))

	output := buf.String()
	for _, expected := range []string{
		"[DEBUG] test debug message key=value",
		"[INFO] test info message count=123",
		"[WARN] test warn message critical=true",
		"[ERROR] test error message error=test error",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("输出不包含: %s\n%s", expected, output)
		}
	}
}

// TestStdLogger_MinLevel 测试最低级别过滤
func TestStdLogger_MinLevel(t *testing.T) {
	buf := captureLog(t)
	logger := NewStdLoggerWithLevel("", WarnLevel)
	ctx := context.Background()

	logger.Debug(ctx, "hidden-debug")
	logger.Info(ctx, "hidden-info")
	logger.Warn(ctx, "shown-warn")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("低于最低级别的日志不应输出: %s", output)
	}
	if !strings.Contains(output, "shown-warn") {
		t.Error("Warn 日志应该输出")
	}
}

// TestStdLogger_WithFields_Immutable 测试WithFields不改变原Logger
func TestStdLogger_WithFields_Immutable(t *testing.T) {
	buf := captureLog(t)
	logger := NewStdLogger("test")
	child := logger.WithFields(String("component", "audit"))

	if len(logger.fields) != 0 {
		t.Error("WithFields改变了原Logger的fields")
	}

	child.Info(context.Background(), "hello", Int64("n", 2))
	if !strings.Contains(buf.String(), "hello component=audit n=2") {
		t.Errorf("输出字段顺序不符合预期: %s", buf.String())
	}
}

// TestParseLevel 测试级别解析
func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"":        InfoLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, 期望 %v", in, got, want)
		}
	}
}

// TestGlobalLogger 测试全局Logger
func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	noop := NewNoopLogger()
	SetLogger(noop)
	if GetLogger() != noop {
		t.Error("全局Logger未正确设置")
	}

	SetLogger(nil)
	if _, ok := GetLogger().(*NoopLogger); !ok {
		t.Error("SetLogger(nil) 应退化为 NoopLogger")
	}
}
