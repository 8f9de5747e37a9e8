package handler

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
)

func TestShouldCompress_AllConditionsMustHold(t *testing.T) {
	cases := []struct {
		name           string
		enabled        bool
		bodyLen        int
		acceptEncoding string
		contentType    string
		want           bool
	}{
		{"all satisfied", true, 2000, "gzip, deflate", "text/html", true},
		{"disabled", false, 2000, "gzip", "text/html", false},
		{"too small", true, 100, "gzip", "text/html", false},
		{"no gzip support", true, 2000, "br", "text/html", false},
		{"non-text content type", true, 2000, "gzip", "application/octet-stream", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := shouldCompress(tc.enabled, tc.bodyLen, tc.acceptEncoding, tc.contentType)
			if got != tc.want {
				t.Fatalf("shouldCompress() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGzipCompress_RoundTrips(t *testing.T) {
	original := []byte(strings.Repeat("hello world ", 200))

	compressed, err := gzipCompress(original)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(compressed) >= len(original) {
		t.Fatalf("expected compression to shrink a repetitive payload")
	}

	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("unexpected error opening gzip reader: %v", err)
	}
	decompressed, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("unexpected error reading decompressed body: %v", err)
	}
	if !bytes.Equal(decompressed, original) {
		t.Fatalf("decompressed body does not match original")
	}
}
