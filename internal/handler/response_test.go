package handler

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestWriteResponse_SetsContentLength(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := writeResponse(w, 200, map[string]string{"Content-Type": "text/plain"}, []byte("hello"), false, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("unexpected status line: %q", out)
	}
	if !strings.Contains(out, "Content-Length: 5\r\n") {
		t.Fatalf("expected Content-Length: 5, got %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\nhello") {
		t.Fatalf("expected body after blank line, got %q", out)
	}
}

func TestWriteResponse_CompressesWhenEligible(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	body := []byte(strings.Repeat("x", 2000))
	headers := map[string]string{"Content-Type": "text/html"}

	err := writeResponse(w, 200, headers, body, true, "gzip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Content-Encoding: gzip\r\n") {
		t.Fatalf("expected gzip content-encoding header, got %q", out)
	}
}

func TestReasonPhrase_KnownAndUnknown(t *testing.T) {
	if reasonPhrase(200) != "OK" {
		t.Fatalf("expected OK for 200")
	}
	if reasonPhrase(599) != "Unknown Status" {
		t.Fatalf("expected fallback phrase for an unrecognized code")
	}
}
