package observability

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/quill/internal/config"
	"github.com/zulandar/quill/internal/logging"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TracingConfig{}, "test", logging.Nop())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	shutdown, err := Init(context.Background(), config.TracingConfig{Enabled: true, Output: path}, "test", logging.Nop())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	_, span := Tracer(nil).Start(context.Background(), "run")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if !strings.Contains(string(data), `"Name":"run"`) {
		t.Errorf("trace output missing span: %s", data)
	}
}

func TestNewProvider_RecordsFailure(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewProvider(context.Background(), &buf, "test")
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	_, span := Tracer(tp).Start(context.Background(), "stage")
	Fail(span, errors.New("boom"))
	Fail(span, nil)
	span.End()
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"Name":"stage"`) || !strings.Contains(out, "boom") {
		t.Errorf("output = %s", out)
	}
}

func TestNopTracer(t *testing.T) {
	_, span := NopTracer().Start(context.Background(), "x")
	if span.SpanContext().IsValid() {
		t.Error("nop tracer should produce invalid span contexts")
	}
	span.End()
}
