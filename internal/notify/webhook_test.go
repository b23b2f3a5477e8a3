package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendPostsJSONText(t *testing.T) {
	var gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(2 * time.Second)
	if err := client.Send(context.Background(), server.URL, "drift detected"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("expected application/json got %q", gotContentType)
	}
	var decoded map[string]string
	if err := json.Unmarshal(gotBody, &decoded); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	if decoded["text"] != "drift detected" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestSendNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(2 * time.Second)
	if err := client.Send(context.Background(), server.URL, "x"); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestSendUnreachable(t *testing.T) {
	client := NewClient(500 * time.Millisecond)
	if err := client.Send(context.Background(), "http://127.0.0.1:1/webhook", "x"); err == nil {
		t.Fatalf("expected error for unreachable host")
	}
}
