// Package dedupe implements the content-based duplicate gate. A document's
// SHA-256 fingerprint is the sole duplicate key: same bytes, same
// fingerprint, regardless of filename or path.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rotisserie/eris"
)

// ErrNotPDF is returned when the document bytes are not a PDF.
var ErrNotPDF = eris.New("dedupe: document is not a PDF")

// Log is the processed-file log consulted before any strategy runs.
// Record must be atomic and idempotent: marking the same fingerprint twice
// (including concurrently) is a no-op, never a double entry.
type Log interface {
	Lookup(ctx context.Context, fingerprint string) (bool, error)
	Record(ctx context.Context, fingerprint, sourceName string) error
}

// Deduplicator computes content fingerprints and answers "already processed".
type Deduplicator struct {
	log Log
}

// New creates a Deduplicator backed by the given processed-file log.
func New(log Log) *Deduplicator {
	return &Deduplicator{log: log}
}

// Fingerprint streams the file through SHA-256 and returns the hex digest.
// Memory use is constant regardless of document size. The file's leading
// bytes must identify as PDF, otherwise ErrNotPDF is returned.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "dedupe: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", eris.Wrapf(err, "dedupe: detect type of %s", path)
	}
	if !mtype.Is("application/pdf") {
		return "", eris.Wrapf(ErrNotPDF, "dedupe: %s detected as %s", path, mtype.String())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", eris.Wrapf(err, "dedupe: rewind %s", path)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "dedupe: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Check fingerprints the document and reports whether it is already known.
func (d *Deduplicator) Check(ctx context.Context, path string) (fingerprint string, known bool, err error) {
	fp, err := Fingerprint(path)
	if err != nil {
		return "", false, err
	}
	known, err = d.log.Lookup(ctx, fp)
	if err != nil {
		return "", false, eris.Wrap(err, "dedupe: lookup")
	}
	return fp, known, nil
}

// Mark records the fingerprint as processed.
func (d *Deduplicator) Mark(ctx context.Context, fingerprint, sourceName string) error {
	if err := d.log.Record(ctx, fingerprint, sourceName); err != nil {
		return eris.Wrap(err, "dedupe: record")
	}
	return nil
}
