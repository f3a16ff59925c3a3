package worker

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestEcho_returnsInputAndBoundTools(t *testing.T) {
	t.Parallel()
	var w Worker = Echo{}
	out, err := w.Invoke(context.Background(), map[string]any{"name": "a"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	m := out.(map[string]any)
	if m["name"] != "a" {
		t.Errorf("output: %+v", m)
	}
	if _, ok := m["tools"]; ok {
		t.Errorf("unexpected tools key without binding: %+v", m)
	}

	bound := Bind(w, []Tool{EchoTool("t1"), EchoTool("t2")})
	out, err = bound.Invoke(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Invoke bound: %v", err)
	}
	names := out.(map[string]any)["tools"].([]string)
	if strings.Join(names, ",") != "t1,t2" {
		t.Errorf("tools: %v", names)
	}
}

func TestBind_nonBinderUnchanged(t *testing.T) {
	t.Parallel()
	f := Func(func(ctx context.Context, input map[string]any) (any, error) { return "x", nil })
	got := Bind(f, []Tool{EchoTool("t")})
	out, _ := got.Invoke(context.Background(), nil)
	if out != "x" {
		t.Errorf("got %v", out)
	}
}

func TestUnwrap(t *testing.T) {
	t.Parallel()
	if v, direct := Unwrap(DirectOutput{Value: 3}); !direct || v != 3 {
		t.Errorf("value DirectOutput: %v %v", v, direct)
	}
	if v, direct := Unwrap(&DirectOutput{Value: "p"}); !direct || v != "p" {
		t.Errorf("pointer DirectOutput: %v %v", v, direct)
	}
	if v, direct := Unwrap("plain"); direct || v != "plain" {
		t.Errorf("plain: %v %v", v, direct)
	}
}

func TestChain_pipesOutputs(t *testing.T) {
	t.Parallel()
	double := ToolFunc{ToolName: "double", Fn: func(ctx context.Context, in any) (any, error) {
		n, ok := in.(int)
		if !ok {
			return nil, InvalidToolInput("double", in, "want int")
		}
		return n * 2, nil
	}}
	inc := ToolFunc{ToolName: "inc", Fn: func(ctx context.Context, in any) (any, error) { return in.(int) + 1, nil }}
	c := Chain("", double, inc)
	if c.Name() != "double|inc" {
		t.Errorf("name: %q", c.Name())
	}
	out, err := c.Invoke(context.Background(), 4)
	if err != nil || out != 9 {
		t.Fatalf("Invoke: %v %v", out, err)
	}
	_, err = c.Invoke(context.Background(), "x")
	if !errors.Is(err, ErrInvalidToolInput) {
		t.Errorf("expected ErrInvalidToolInput, got %v", err)
	}
}

func TestRetrying_retriesUntilSuccess(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	flaky := Func(func(ctx context.Context, input map[string]any) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})
	r := Retrying{Worker: flaky, MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	out, err := r.Invoke(context.Background(), nil)
	if err != nil || out != "ok" {
		t.Fatalf("Invoke: %v %v", out, err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls: %d", calls.Load())
	}
}

func TestRetrying_permanentStops(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	boom := errors.New("boom")
	w := Func(func(ctx context.Context, input map[string]any) (any, error) {
		calls.Add(1)
		return nil, Permanent(boom)
	})
	r := Retrying{Worker: w, MaxRetries: 5, InitialInterval: time.Millisecond}
	_, err := r.Invoke(context.Background(), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls: %d", calls.Load())
	}
}

func TestRetrying_exhausts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	w := Func(func(ctx context.Context, input map[string]any) (any, error) {
		calls.Add(1)
		return nil, errors.New("always")
	})
	r := Retrying{Worker: w, MaxRetries: 2, InitialInterval: time.Millisecond}
	if _, err := r.Invoke(context.Background(), nil); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls: %d", calls.Load())
	}
}

func TestSubprocess_emptyCommand(t *testing.T) {
	t.Parallel()
	if _, err := (Subprocess{}).Invoke(context.Background(), nil); err == nil {
		t.Fatal("expected error when command empty")
	}
}

func TestSubprocess_blockedCommand(t *testing.T) {
	t.Parallel()
	if _, err := (Subprocess{Command: "rm", Args: []string{"-rf", "x"}}).Invoke(context.Background(), nil); err == nil {
		t.Fatal("expected blocked command error")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return script
}

func TestSubprocess_outputEvent(t *testing.T) {
	t.Parallel()
	script := writeScript(t, `read line
echo '{"type":"log","message":"working"}'
echo '{"type":"output","data":{"answer":42}}'
`)
	out, err := (Subprocess{Command: script, Timeout: 5 * time.Second}).Invoke(context.Background(), map[string]any{"name": "a"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["answer"] != float64(42) {
		t.Errorf("output: %#v", out)
	}
}

func TestSubprocess_oversizedLineFailsFast(t *testing.T) {
	t.Parallel()
	script := writeScript(t, `head -c 6000000 /dev/zero
sleep 60
`)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := (Subprocess{Command: script}).Invoke(ctx, nil)
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("expected bufio.ErrTooLong, got %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("worker ran until the context expired")
	}
}

func TestSubprocess_directOutputAndText(t *testing.T) {
	t.Parallel()
	direct := writeScript(t, `read line
echo '{"type":"direct_output","data":"final"}'
`)
	out, err := (Subprocess{Command: direct}).Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if v, isDirect := Unwrap(out); !isDirect || v != "final" {
		t.Errorf("direct output: %#v", out)
	}

	text := writeScript(t, `read line
echo "$line"
`)
	out, err = (Subprocess{Command: text}).Invoke(context.Background(), map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if s, _ := out.(string); s != `{"k":"v"}` {
		t.Errorf("text output: %#v", out)
	}
}

func TestSubprocess_nonZeroExit(t *testing.T) {
	t.Parallel()
	script := writeScript(t, "echo oops >&2\nexit 3\n")
	_, err := (Subprocess{Command: script}).Invoke(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "oops") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestWebhook_postsJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tool := Webhook{ToolName: "notify", URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}}
	out, err := tool.Invoke(context.Background(), map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if m, _ := out.(map[string]any); m["ok"] != true {
		t.Errorf("output: %#v", out)
	}
}

func TestWebhook_errorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if _, err := (Webhook{URL: srv.URL}).Invoke(context.Background(), "x"); err == nil {
		t.Fatal("expected error on 500")
	}
	if _, err := (Webhook{}).Invoke(context.Background(), "x"); err == nil {
		t.Fatal("expected error when URL empty")
	}
}
