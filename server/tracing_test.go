package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mazearena/protocol"
)

// endedSpans 等待至少 n 个 span 结束
func endedSpans(t *testing.T, rec *tracetest.SpanRecorder, n int) []sdktrace.ReadOnlySpan {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		spans := rec.Ended()
		if len(spans) >= n {
			return spans
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d spans ended, want %d", len(spans), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func spanAttr(s sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range s.Attributes() {
		if kv.Key == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestDispatchSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	s := newTestServerWith(t, fixedGames{}, Options{IdleTimeout: 5 * time.Second, TracerProvider: tp})
	c := dial(t, s)
	c.login("alice")
	roomID := protocol.Field{Tag: protocol.TagRoomID, Value: "maze"}
	c.sendRaw(protocol.RequestCreateRoom, roomID)
	c.expect(protocol.ResponseAuthError)
	c.send(protocol.RequestCreateRoom, roomID)
	c.expectOK(protocol.ResponseCreateRoomResult)

	spans := endedSpans(t, rec, 3)
	tests := []struct {
		name   string
		user   string
		status codes.Code
	}{
		{"dispatch REQUEST_LOGIN", "alice", codes.Unset},
		{"dispatch REQUEST_CREATE_ROOM", "", codes.Error},
		{"dispatch REQUEST_CREATE_ROOM", "alice", codes.Unset},
	}
	for i, tc := range tests {
		got := spans[i]
		if got.Name() != tc.name {
			t.Errorf("span %d name = %q, want %q", i, got.Name(), tc.name)
		}
		if u := spanAttr(got, "mazearena.user"); u != tc.user {
			t.Errorf("span %d user = %q, want %q", i, u, tc.user)
		}
		if got.Status().Code != tc.status {
			t.Errorf("span %d status = %v, want %v", i, got.Status().Code, tc.status)
		}
		if spanAttr(got, "mazearena.conn") == "" {
			t.Errorf("span %d has no conn attribute", i)
		}
	}
}

func TestNewTracerProvider(t *testing.T) {
	tests := []struct {
		exporter string
		wantErr  bool
	}{
		{"none", false},
		{"", false},
		{"file", false},
		{"jaeger", true},
	}
	for _, tc := range tests {
		tp, err := NewTracerProvider(tc.exporter, filepath.Join(t.TempDir(), "traces.jsonl"), "test")
		if (err != nil) != tc.wantErr {
			t.Errorf("NewTracerProvider(%q) error = %v, wantErr %v", tc.exporter, err, tc.wantErr)
			continue
		}
		if tp != nil {
			_, span := tp.Tracer("test").Start(context.Background(), "op")
			span.End()
			if err := tp.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown(%q) error = %v", tc.exporter, err)
			}
		}
	}
}
