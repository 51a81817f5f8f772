package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewJSONWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.With(String("run_id", "r1")).Info(context.Background(), "stage done",
		Int("candidates", 12), Err(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "stage done" {
		t.Errorf("msg = %v, want stage done", rec["msg"])
	}
	if rec["run_id"] != "r1" {
		t.Errorf("run_id = %v, want r1", rec["run_id"])
	}
	if rec["candidates"] != float64(12) {
		t.Errorf("candidates = %v, want 12", rec["candidates"])
	}
	if rec["error"] != "boom" {
		t.Errorf("error = %v, want boom", rec["error"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden too")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("output contains filtered messages: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("output missing warn message: %q", out)
	}
}

func TestNoopDoesNotPanic(t *testing.T) {
	l := Noop().With(String("k", "v"))
	l.Debug(context.Background(), "x")
	l.Info(context.Background(), "x")
	l.Warn(context.Background(), "x")
	l.Error(context.Background(), "x")
}
