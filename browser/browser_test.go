package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/pithecene-io/specbridge/engine"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL any
		raw     string
		want    string
		wantErr string
	}{
		{"absolute", nil, "https://other.test/a", "https://other.test/a", ""},
		{"relative with base", "https://app.test/root/", "login", "https://app.test/root/login", ""},
		{"rooted with base", "https://app.test/root/", "/login", "https://app.test/login", ""},
		{"relative without base", nil, "/login", "", "needs a baseUrl"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := engine.New(engine.Options{})
			if tc.baseURL != nil {
				if err := e.ApplyConfig(map[string]any{"baseUrl": tc.baseURL}); err != nil {
					t.Fatalf("ApplyConfig: %v", err)
				}
			}
			got, err := resolveURL(e, tc.raw)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveURL: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStringArg(t *testing.T) {
	if _, err := stringArg("click", nil, 0); err == nil {
		t.Error("missing argument should fail")
	}
	if _, err := stringArg("click", []any{42}, 0); err == nil {
		t.Error("non-string argument should fail")
	}
	if _, err := stringArg("click", []any{""}, 0); err == nil {
		t.Error("empty selector should fail")
	}
	got, err := stringArg("click", []any{"#go"}, 0)
	if err != nil || got != "#go" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestConsoleArgs(t *testing.T) {
	got := consoleArgs([]*runtime.RemoteObject{
		{Value: []byte(`"ready"`)},
		{Description: "HTMLDivElement"},
		{},
		{Value: []byte("42")},
	})
	if want := `"ready" HTMLDivElement 42`; got != want {
		t.Errorf("consoleArgs = %q, want %q", got, want)
	}
}

func TestSession_ClosedRejectsCommands(t *testing.T) {
	s := &Session{closed: true}
	if err := s.Run(t.Context()); err != ErrSessionClosed {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

// newE2ESession starts a real browser. Requires Chrome and SPECBRIDGE_E2E=1.
func newE2ESession(t *testing.T) *Session {
	t.Helper()
	if os.Getenv("SPECBRIDGE_E2E") != "1" {
		t.Skip("set SPECBRIDGE_E2E=1 to run browser tests")
	}
	s, err := New(t.Context(), Options{Headless: true, NoSandbox: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const page = `<!doctype html>
<html><head><title>other domain</title></head>
<body>
<h1 id="greeting">hello</h1>
<button id="go" onclick="document.getElementById('greeting').textContent='clicked'">go</button>
</body></html>`

func TestSession_E2ECommands(t *testing.T) {
	s := newE2ESession(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	e := engine.New(engine.Options{})
	s.Register(e)
	if err := e.ApplyConfig(map[string]any{"baseUrl": srv.URL}); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}

	steps := []struct {
		name string
		args []any
	}{
		{"visit", []any{"/"}},
		{"viewport", []any{int64(800), int64(600)}},
		{"click", []any{"#go"}},
		{"text", []any{"#greeting"}},
	}
	for _, st := range steps {
		if err := e.Enqueue(st.name, st.args...); err != nil {
			t.Fatalf("Enqueue %s: %v", st.name, err)
		}
	}

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()
	subject, err := e.RunQueue(ctx)
	if err != nil {
		t.Fatalf("RunQueue: %v", err)
	}
	if subject != "clicked" {
		t.Errorf("subject = %v, want clicked", subject)
	}
	if w, h := e.Viewport(); w != 800 || h != 600 {
		t.Errorf("viewport = %dx%d, want 800x600", w, h)
	}

	var width float64
	if err := s.Run(ctx, chromedp.Evaluate(`window.innerWidth`, &width)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if width != 800 {
		t.Errorf("innerWidth = %v, want 800", width)
	}
}

func TestSession_E2ETitleAndExec(t *testing.T) {
	s := newE2ESession(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	e := engine.New(engine.Options{})
	s.Register(e)
	if err := e.Enqueue("visit", srv.URL); err != nil {
		t.Fatal(err)
	}
	if err := e.Enqueue("title"); err != nil {
		t.Fatal(err)
	}
	subject, err := e.RunQueue(t.Context())
	if err != nil {
		t.Fatalf("RunQueue: %v", err)
	}
	if subject != "other domain" {
		t.Errorf("title = %v", subject)
	}

	e.Queue().Reset()
	if err := e.Enqueue("exec", "1 + 2"); err != nil {
		t.Fatal(err)
	}
	subject, err = e.RunQueue(t.Context())
	if err != nil {
		t.Fatalf("RunQueue: %v", err)
	}
	if subject != float64(3) {
		t.Errorf("exec = %#v, want 3", subject)
	}
}
