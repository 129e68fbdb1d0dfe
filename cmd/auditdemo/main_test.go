package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"auditor/config"
	"auditor/logging"
)

// warnLogger 只记录 warn 消息
type warnLogger struct {
	warns []string
}

func (l *warnLogger) Debug(context.Context, string, ...logging.Field) {}
func (l *warnLogger) Info(context.Context, string, ...logging.Field)  {}
func (l *warnLogger) Warn(ctx context.Context, msg string, fields ...logging.Field) {
	l.warns = append(l.warns, msg)
}
func (l *warnLogger) Error(context.Context, string, ...logging.Field) {}
func (l *warnLogger) WithFields(...logging.Field) logging.Logger      { return l }

func TestBuildSinks_UnusableSinkIsLoggedAndSkipped(t *testing.T) {
	logger := &warnLogger{}
	prev := logging.GetLogger()
	logging.SetLogger(logger)
	t.Cleanup(func() { logging.SetLogger(prev) })

	sink, closeAll := buildSinks(context.Background(), config.SinksConfig{
		Redis: config.RedisSinkConfig{Enabled: true},
	})
	closeAll()

	assert.Nil(t, sink)
	assert.Equal(t, []string{"redis sink disabled"}, logger.warns)
}

func TestBuildSinks_NoneEnabled(t *testing.T) {
	sink, closeAll := buildSinks(context.Background(), config.SinksConfig{})
	closeAll()
	assert.Nil(t, sink)
}
