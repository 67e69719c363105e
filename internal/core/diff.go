package core

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	BinarySampleSize   = 8192 // Bytes to sample for text/binary detection
	BinaryThresholdPct = 10   // Max % non-printable chars for text content
)

// DetectTextContent determines if content is likely text or binary.
// Returns true if the content appears to be text.
//
// Detection heuristic (in order):
//  1. Null bytes present → binary (canvas scenes, images, etc.)
//  2. Invalid UTF-8 → binary
//  3. >10% non-printable control chars → binary
func DetectTextContent(data []byte) bool {
	if len(data) == 0 {
		return true
	}

	if bytes.IndexByte(data, 0) != -1 {
		return false
	}

	sample := data
	if len(sample) > BinarySampleSize {
		sample = sample[:BinarySampleSize]
	}

	if !utf8.Valid(sample) {
		return false
	}

	nonPrintable := 0
	for _, b := range sample {
		// Allow common whitespace: space, tab, newline, carriage return
		if b < 32 && b != 9 && b != 10 && b != 13 {
			nonPrintable++
		}
		if b == 127 {
			nonPrintable++
		}
	}

	threshold := len(sample) * BinaryThresholdPct / 100
	return nonPrintable <= threshold
}

// SameContent checks if two contents are identical by SHA-256
func SameContent(a, b []byte) bool {
	ha := sha256.Sum256(a)
	hb := sha256.Sum256(b)
	return bytes.Equal(ha[:], hb[:])
}

// GenerateUnifiedDiff produces a patch from the locked copy to the current
// content, or an empty string when they are identical.
func GenerateUnifiedDiff(name string, lockedData, currentData []byte) string {
	if SameContent(lockedData, currentData) {
		return ""
	}

	if !DetectTextContent(lockedData) || !DetectTextContent(currentData) {
		return fmt.Sprintf("Binary content %s has changed\n", name)
	}

	dmp := diffmatchpatch.New()

	// Line-mode diff for better output
	lockedStr, currentStr := string(lockedData), string(currentData)
	a, b, lineArray := dmp.DiffLinesToChars(lockedStr, currentStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	patches := dmp.PatchMake(lockedStr, diffs)
	if len(patches) == 0 {
		return ""
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("--- locked/%s\n", name))
	result.WriteString(fmt.Sprintf("+++ current/%s\n", name))
	result.WriteString(dmp.PatchToText(patches))
	return result.String()
}
