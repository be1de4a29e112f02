package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDoSendsIdentityAndKeepsCookies(t *testing.T) {
	var seenUser, seenCookie, seenTrace string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUser = r.Header.Get("X-User-Id")
		seenTrace = r.Header.Get("X-Trace-Id")
		if cookie, err := r.Cookie("shodh_joined"); err == nil {
			seenCookie = cookie.Value
		}
		http.SetCookie(w, &http.Cookie{Name: "shodh_joined", Value: "signed", Path: "/"})
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, func() int64 { return 9 })
	resp, err := c.Do(context.Background(), http.MethodGet, "/api/contests", nil, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, resp.Body)
	}
	if seenUser != "9" || seenTrace == "" || seenTrace != resp.TraceID {
		t.Fatalf("unexpected headers user=%q trace=%q", seenUser, seenTrace)
	}

	if _, err := c.Do(context.Background(), http.MethodGet, "/api/contests", nil, nil); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	if seenCookie != "signed" {
		t.Fatalf("expected cookie to be replayed, got %q", seenCookie)
	}
}

func TestDoTransportError(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond, nil)
	if _, err := c.Do(context.Background(), http.MethodGet, "/", nil, nil); err == nil {
		t.Fatalf("expected transport error")
	}
}
