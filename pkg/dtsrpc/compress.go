package dtsrpc

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/grpc/encoding"
)

// CompressorName is the name grpc-go negotiates this compressor under, via
// the standard grpc-encoding/grpc-accept-encoding metadata dance.
const CompressorName = "dts-gzip"

// compressThreshold is the payload size, in bytes, above which a ListenResults
// frame is actually gzipped. Below it the flag byte plus passthrough bytes is
// cheaper than paying gzip's frame overhead for a handful of bytes.
const compressThreshold = 256

// init registers thresholdGzipCompressor globally so any call that opts in
// via grpc.UseCompressor(CompressorName) gets it automatically on both ends
// of the connection; grpc-go looks compressors up by name through this same
// registry for both client and server.
func init() {
	encoding.RegisterCompressor(thresholdGzipCompressor{})
}

// thresholdGzipCompressor implements google.golang.org/grpc/encoding.Compressor
// over klauspost/compress/gzip, but only actually compresses a message once
// it crosses compressThreshold — most TaskResult frames are small enough that
// gzip's own framing overhead would make them larger, not smaller, so a
// leading flag byte picks passthrough instead when that would lose.
type thresholdGzipCompressor struct{}

func (thresholdGzipCompressor) Name() string { return CompressorName }

// thresholdWriter buffers every write and only decides whether to gzip on
// Close, once the full message size is known.
type thresholdWriter struct {
	dst io.Writer
	buf bytes.Buffer
}

func (thresholdGzipCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	return &thresholdWriter{dst: w}, nil
}

func (tw *thresholdWriter) Write(p []byte) (int, error) {
	return tw.buf.Write(p)
}

func (tw *thresholdWriter) Close() error {
	if tw.buf.Len() < compressThreshold {
		if _, err := tw.dst.Write([]byte{0}); err != nil {
			return err
		}
		_, err := tw.dst.Write(tw.buf.Bytes())
		return err
	}

	if _, err := tw.dst.Write([]byte{1}); err != nil {
		return err
	}
	gw := gzip.NewWriter(tw.dst)
	if _, err := gw.Write(tw.buf.Bytes()); err != nil {
		return err
	}
	return gw.Close()
}

func (thresholdGzipCompressor) Decompress(r io.Reader) (io.Reader, error) {
	flag := make([]byte, 1)
	if _, err := io.ReadFull(r, flag); err != nil {
		return nil, fmt.Errorf("dtsrpc: read compression flag: %w", err)
	}
	if flag[0] == 0 {
		return r, nil
	}
	return gzip.NewReader(r)
}
