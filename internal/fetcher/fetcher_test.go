package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch_OK(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG-bytes"))
	}))
	defer srv.Close()

	f := New(WithClient(srv.Client()), WithUserAgent("imagesorter-test"))
	res, err := f.Fetch(context.Background(), srv.URL+"/cover.png")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Data) != "\x89PNG-bytes" {
		t.Errorf("data = %q", res.Data)
	}
	if res.ContentType != "image/png" {
		t.Errorf("content type = %q", res.ContentType)
	}
	if gotUA != "imagesorter-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetch_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(WithClient(srv.Client())).Fetch(context.Background(), srv.URL+"/missing.jpg")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d", fe.StatusCode)
	}
	if !strings.Contains(fe.URL, "/missing.jpg") {
		t.Errorf("URL = %q", fe.URL)
	}
}

func TestFetch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/gone.png"
	srv.Close()

	_, err := New().Fetch(context.Background(), url)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", fe.StatusCode)
	}
	if fe.Err == nil {
		t.Error("expected underlying error")
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	_, err := New().Fetch(context.Background(), "http://bad host/x.png")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
}

func TestFetch_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 32)))
	}))
	defer srv.Close()

	f := New(WithClient(srv.Client()), WithMaxBytes(16))
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected size error")
	}

	f = New(WithClient(srv.Client()), WithMaxBytes(32))
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("body at the limit should pass: %v", err)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithClient(srv.Client())).Fetch(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestFetch_DataURI(t *testing.T) {
	// "hello" in base64
	res, err := New().Fetch(context.Background(), "data:image/webp;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Data) != "hello" || res.ContentType != "image/webp" {
		t.Errorf("got %q %q", res.Data, res.ContentType)
	}

	for _, bad := range []string{
		"data:image/png;base64",
		"data:image/png,plain",
		"data:image/png;base64,!!!",
	} {
		if _, err := New().Fetch(context.Background(), bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFetch_BlockInternal(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("img"))
	}))
	defer srv.Close()

	_, err := New(WithClient(srv.Client()), WithBlockInternal(true)).Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "loopback") {
		t.Fatalf("err = %v, want loopback block", err)
	}
	if hits != 0 {
		t.Errorf("server was hit %d times", hits)
	}

	// Disabled by default.
	if _, err := New(WithClient(srv.Client())).Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}

func TestCheckBlockedHost(t *testing.T) {
	tests := []struct {
		host    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"169.254.169.254", true},
		{"metadata.google.internal", true},
		{"93.184.216.34", false},
	}
	for _, tt := range tests {
		err := checkBlockedHost(tt.host)
		if (err != nil) != tt.blocked {
			t.Errorf("checkBlockedHost(%q) = %v, blocked want %v", tt.host, err, tt.blocked)
		}
	}
}

func TestDisplayURL(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", 200) + ".png"
	if got := DisplayURL(long); got != long {
		t.Errorf("http URLs must be kept whole, got %q", got)
	}
	data := "data:image/png;base64," + strings.Repeat("A", 200)
	got := DisplayURL(data)
	if len(got) != 67 || !strings.HasSuffix(got, "...") {
		t.Errorf("DisplayURL(data) = %q", got)
	}
	if short := "data:image/png;base64,AAAA"; DisplayURL(short) != short {
		t.Error("short data URIs are kept")
	}
}
