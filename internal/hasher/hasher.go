// Package hasher computes line-ending-insensitive content digests used for
// change detection. Digests are never used for identity.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NormalizeToCrlf converts every bare LF to CRLF. Existing CRLF pairs and
// lone CR bytes are left untouched.
func NormalizeToCrlf(text string) string {
	bare := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' && (i == 0 || text[i-1] != '\r') {
			bare++
		}
	}
	if bare == 0 {
		return text
	}

	out := make([]byte, 0, len(text)+bare)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' && (i == 0 || text[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, c)
	}
	return string(out)
}

// ComputeContentHash returns the lowercase hex SHA-256 of text after CRLF normalization
func ComputeContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeToCrlf(text)))
	return hex.EncodeToString(sum[:])
}

// ReadText reads a file as text. A UTF-8 or UTF-16 byte order mark selects
// the decoding and is stripped; files without one are read as UTF-8.
func ReadText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(&ctxReader{ctx: ctx, r: f}, decoder))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	return string(data), nil
}

// ComputeFileContentHash reads a file and hashes its normalized text.
// No hash is produced when the read fails or ctx is cancelled.
func ComputeFileContentHash(ctx context.Context, path string) (string, error) {
	text, err := ReadText(ctx, path)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return ComputeContentHash(text), nil
}

// ctxReader aborts a long read once its context is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
