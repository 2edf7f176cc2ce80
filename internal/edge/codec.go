package edge

import (
	"bytes"
	"compress/gzip"
	"fmt"
)

// Codec compresses an outbound batch payload for transmission.
type Codec interface {
	Name() string
	Encode(payload []byte) ([]byte, error)
}

// GzipCodec is the only concrete Codec wired in this build. No Brotli
// encoder is available anywhere in the dependency set this project draws
// from; ResolveCodec still recognizes the "Brotli" config
// value so operators get a clear validation error instead of silent
// misbehavior, rather than pretending the setting does not exist.
type GzipCodec struct{}

func (GzipCodec) Name() string { return "gzip" }

func (GzipCodec) Encode(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("edge: gzip encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("edge: gzip encode close: %w", err)
	}
	return buf.Bytes(), nil
}

// ErrBrotliUnavailable is returned by ResolveCodec when the configured
// algorithm is Brotli; no encoder for it is wired in this build.
var ErrBrotliUnavailable = fmt.Errorf("edge: Brotli compression is configured but no encoder is wired in this build; use Gzip")

// ResolveCodec maps a configured compression algorithm name to a Codec.
func ResolveCodec(algorithm string) (Codec, error) {
	switch algorithm {
	case "Gzip", "":
		return GzipCodec{}, nil
	case "Brotli":
		return nil, ErrBrotliUnavailable
	default:
		return nil, fmt.Errorf("edge: unknown compression algorithm %q", algorithm)
	}
}
