package handler

import (
	"bytes"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// gzipWriterPool reuses *gzip.Writer values across responses instead of
// allocating one per request.
var gzipWriterPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
		return w
	},
}

// shouldCompress reports whether a response body should be gzip-encoded
// before relaying it to the client: compression enabled, body over 1024
// bytes, client advertised gzip, and the origin content type looks
// textual.
func shouldCompress(enabled bool, bodyLen int, acceptEncoding, contentType string) bool {
	if !enabled || bodyLen <= 1024 {
		return false
	}
	if !strings.Contains(strings.ToLower(acceptEncoding), "gzip") {
		return false
	}
	return strings.Contains(strings.ToLower(contentType), "text")
}

// gzipCompress compresses body using a pooled writer.
func gzipCompress(body []byte) ([]byte, error) {
	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)

	var buf bytes.Buffer
	w.Reset(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
