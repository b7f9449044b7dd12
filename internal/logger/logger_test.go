package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log := New("extrato-test")
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected logger to be enabled")
	}
}

func TestNew_LevelFromEnv(t *testing.T) {
	t.Setenv("EXTRATO_LOG_LEVEL", "debug")
	if got := New("extrato-test").GetLevel(); got != zerolog.DebugLevel {
		t.Errorf("GetLevel() = %v, want debug", got)
	}

	t.Setenv("EXTRATO_LOG_LEVEL", "warn")
	if got := New("extrato-test").GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("GetLevel() = %v, want warn", got)
	}

	t.Setenv("EXTRATO_LOG_LEVEL", "nonsense")
	if got := New("extrato-test").GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("GetLevel() = %v, want info fallback", got)
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	output := buf.String()
	if output == "" {
		t.Error("Expected log output, got empty string")
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got: %s", output)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	testLog := NewWithWriter(buf)
	ctx := WithContext(context.Background(), testLog)

	retrievedLog := FromContext(ctx)
	retrievedLog.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("Expected log output from retrieved logger")
	}
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() == zerolog.Disabled {
		t.Error("Expected default logger to be enabled")
	}
}
