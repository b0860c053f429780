package scan

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const binarySniffLen = 8000

// buildDiff renders a unified diff of the candidate against its baseline
// blob. Binary content and missing baselines degrade to a short note so a
// verbose report never fails on them.
func (s *Scanner) buildDiff(rel, oldOID string, newData []byte) string {
	if isBinary(newData) {
		return fmt.Sprintf("Binary file %s differs\n", rel)
	}
	var oldData []byte
	if s.opts.Blobs != nil {
		if data, err := s.opts.Blobs.Read(oldOID); err == nil {
			oldData = data
		}
	}
	if oldData == nil {
		return fmt.Sprintf("--- a/%s\n+++ b/%s\n(baseline content unavailable)\n", rel, rel)
	}
	if isBinary(oldData) {
		return fmt.Sprintf("Binary file %s differs\n", rel)
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(oldData)),
		B:        splitLinesKeepNL(string(newData)),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  3,
	})
	if err != nil {
		return fmt.Sprintf("(diff failed: %v)\n", err)
	}
	if len(text) > s.opts.MaxDiffChars {
		text = text[:s.opts.MaxDiffChars] + "\n(diff truncated)\n"
	}
	return text
}

// splitLinesKeepNL splits keeping newlines attached, which is the shape
// difflib expects for faithful hunk output.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}

func isBinary(data []byte) bool {
	n := len(data)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is rooted in the scanned tree
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
