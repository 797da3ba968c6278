package mls

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// zipMethodZstd is the ZIP compression method ID for Zstandard (APPNOTE 6.3.7).
const zipMethodZstd uint16 = 93

// Compression selects the zip entry codec.
type Compression int

const (
	// CompressionDeflate is readable by every unzip tool; use it for
	// anything handed to agents or MLS boards.
	CompressionDeflate Compression = iota
	// CompressionZstd produces smaller internal archives.
	CompressionZstd
)

func (c Compression) method() uint16 {
	if c == CompressionZstd {
		return zipMethodZstd
	}
	return zip.Deflate
}

// ParseCompression maps a config value to a Compression. Unknown values
// fall back to deflate.
func ParseCompression(s string) Compression {
	if s == "zstd" {
		return CompressionZstd
	}
	return CompressionDeflate
}

func (c Compression) String() string {
	if c == CompressionZstd {
		return "zstd"
	}
	return "deflate"
}

// newZipWriter registers the klauspost codecs on this writer only, so the
// package never touches archive/zip's global registry.
func newZipWriter(w io.Writer) *zip.Writer {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	zw.RegisterCompressor(zipMethodZstd, func(out io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(12)))
	})
	return zw
}

func addEntry(zw *zip.Writer, name string, data []byte, c Compression, modified time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   c.method(),
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}

// countingWriter tracks how many bytes reached the underlying writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
