// Package diff renders unified diffs between a mapping file and its migrated
// rewrite, so the effect of a migration can be reviewed line by line.
// It uses github.com/pmezard/go-difflib/difflib for the hunks.
package diff

import (
	"fmt"
	"os"
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
	"gitlab.com/tozd/go/errors"

	"field-migrator/internal/textutil"
)

// Options controls patch generation.
type Options struct {
	// MaxBytes caps old+new input size. When exceeded a placeholder patch is
	// returned and oversize=true. 0 means no limit.
	MaxBytes int

	// Context is the number of context lines around each hunk. 0 means 3.
	Context int
}

// Unified produces a unified patch for a -> b. Line endings are normalized
// first; inputs that then match yield an empty body.
func Unified(aName, bName string, a, b []byte, opt Options) (body string, oversize bool) {
	if opt.MaxBytes > 0 && len(a)+len(b) > opt.MaxBytes {
		return omitted(aName, bName), true
	}
	a, b = textutil.NormalizeLF(a), textutil.NormalizeLF(b)
	if string(a) == string(b) {
		return "", false
	}
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 3
	}
	s, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  ctx,
	})
	if err != nil || s == "" {
		return omitted(aName, bName), false
	}
	return s, false
}

// Files diffs two files on disk, labelling the hunks with their paths.
func Files(aPath, bPath string, opt Options) (body string, oversize bool, err error) {
	a, err := os.ReadFile(aPath)
	if err != nil {
		return "", false, errors.Errorf("read %s: %w", aPath, err)
	}
	b, err := os.ReadFile(bPath)
	if err != nil {
		return "", false, errors.Errorf("read %s: %w", bPath, err)
	}
	body, oversize = Unified(aPath, bPath, a, b, opt)
	return body, oversize, nil
}

// splitLinesKeepNL keeps the "\n" on every line, which difflib expects.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func omitted(aName, bName string) string {
	return fmt.Sprintf("--- %s\n+++ %s\n@@\n# diff omitted (oversize)\n", aName, bName)
}
