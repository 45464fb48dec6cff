package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// BrotliConfig tunes response compression.
type BrotliConfig struct {
	Quality   int
	MinLength int
	// ContentTypes limits compression to responses whose Content-Type starts
	// with one of these prefixes. Empty compresses everything.
	ContentTypes []string
}

// DefaultBrotliConfig compresses JSON and CSV bodies of at least 1 KiB.
var DefaultBrotliConfig = BrotliConfig{
	Quality:      brotli.DefaultCompression,
	MinLength:    1024,
	ContentTypes: []string{"application/json", "text/csv"},
}

type brotliWriter struct {
	gin.ResponseWriter
	writer     *brotli.Writer
	buf        []byte
	minLength  int
	types      []string
	once       sync.Once
	compressed bool
	bypass     bool
}

func (bw *brotliWriter) Write(data []byte) (int, error) {
	if bw.bypass {
		return bw.ResponseWriter.Write(data)
	}
	if !bw.compressed && !bw.compressible() {
		bw.bypass = true
		return bw.passThrough(data)
	}

	bw.buf = append(bw.buf, data...)
	if len(bw.buf) < bw.minLength {
		return len(data), nil
	}

	bw.once.Do(func() {
		bw.compressed = true
		bw.ResponseWriter.Header().Set("Content-Encoding", "br")
		bw.ResponseWriter.Header().Del("Content-Length")
	})
	if _, err := bw.writer.Write(bw.buf); err != nil {
		return 0, err
	}
	bw.buf = bw.buf[:0]
	return len(data), nil
}

func (bw *brotliWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// passThrough drains anything buffered and then writes data unmodified.
func (bw *brotliWriter) passThrough(data []byte) (int, error) {
	if len(bw.buf) > 0 {
		if _, err := bw.ResponseWriter.Write(bw.buf); err != nil {
			return 0, err
		}
		bw.buf = bw.buf[:0]
	}
	return bw.ResponseWriter.Write(data)
}

func (bw *brotliWriter) compressible() bool {
	if len(bw.types) == 0 {
		return true
	}
	ct := bw.ResponseWriter.Header().Get("Content-Type")
	for _, prefix := range bw.types {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// Flush forwards to the underlying writer. Compressed output is flushed
// through the encoder; short bodies still buffered go out as plain text.
func (bw *brotliWriter) Flush() {
	if bw.compressed {
		_ = bw.writer.Flush()
	} else if len(bw.buf) > 0 {
		_, _ = bw.ResponseWriter.Write(bw.buf)
		bw.buf = bw.buf[:0]
		bw.bypass = true
	}
	bw.ResponseWriter.Flush()
}

func (bw *brotliWriter) finish() error {
	if bw.compressed {
		return bw.writer.Close()
	}
	if len(bw.buf) == 0 {
		return nil
	}
	_, err := bw.ResponseWriter.Write(bw.buf)
	bw.buf = bw.buf[:0]
	return err
}

// Brotli compresses responses with the default configuration.
func Brotli() gin.HandlerFunc {
	return BrotliWithConfig(DefaultBrotliConfig)
}

// BrotliWithConfig compresses responses for clients that accept "br".
// Event streams are never compressed.
func BrotliWithConfig(cfg BrotliConfig) gin.HandlerFunc {
	if cfg.Quality < 0 || cfg.Quality > 11 {
		cfg.Quality = brotli.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultBrotliConfig.MinLength
	}

	return func(c *gin.Context) {
		if strings.Contains(c.GetHeader("Accept"), "text/event-stream") || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		bw := &brotliWriter{
			ResponseWriter: c.Writer,
			minLength:      cfg.MinLength,
			types:          cfg.ContentTypes,
			writer:         brotli.NewWriterLevel(c.Writer, cfg.Quality),
		}

		defer func() {
			if err := bw.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Writer = bw
		c.Next()
	}
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
