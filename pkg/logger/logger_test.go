package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.InfoLevel).With(String("component", "engine"))

	l.Info("round complete",
		Decimal("delta", decimal.RequireFromString("15.00")),
		Strings("failed", []string{"AAPL", "MSFT"}),
		Error(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if got["component"] != "engine" {
		t.Fatalf("component = %v", got["component"])
	}
	if got["delta"] != "15" {
		t.Fatalf("delta = %v", got["delta"])
	}
	if got["failed"] != "AAPL, MSFT" {
		t.Fatalf("failed = %v", got["failed"])
	}
	if got["error"] != "boom" {
		t.Fatalf("error = %v", got["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.WarnLevel)
	l.Info("hidden")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
	l.Warn("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected warn output")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud", Output: "stdout"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNopDoesNotPanic(t *testing.T) {
	Nop().Error("ignored", Error(nil))
}
