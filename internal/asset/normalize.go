package asset

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// dimensionSuffix matches WordPress size variants like "-1024x768"
	dimensionSuffix = regexp.MustCompile(`-\d+x\d+$`)

	scaledSuffix = "-scaled"
)

// Stem returns filename without its final extension.
// Dotfiles such as ".hidden" keep their full name.
func Stem(filename string) string {
	ext := filepath.Ext(filename)
	if ext == filename {
		return filename
	}
	return strings.TrimSuffix(filename, ext)
}

// Normalize maps a remote filename to its normalized stem:
// 1. Strip the extension
// 2. Lowercase (after Unicode NFC composition)
// 3. Strip one trailing -<digits>x<digits>
// 4. Strip one trailing -scaled
//
// A dimension suffix uncovered by step 4 ("photo-300x200-scaled") is
// stripped then, so neither suffix survives in either order.
func Normalize(filename string) string {
	return NormalizeStem(Stem(filename))
}

// NormalizeStem normalizes a stem that has already lost its extension.
// Local files go through here so both sides compare symmetrically.
func NormalizeStem(stem string) string {
	s := strings.ToLower(norm.NFC.String(stem))

	dimsStripped := false
	if loc := dimensionSuffix.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
		dimsStripped = true
	}

	if trimmed, ok := strings.CutSuffix(s, scaledSuffix); ok {
		s = trimmed
		if !dimsStripped {
			if loc := dimensionSuffix.FindStringIndex(s); loc != nil {
				s = s[:loc[0]]
			}
		}
	}

	return s
}

// HasVariantSuffix reports whether filename carries a size or -scaled suffix,
// i.e. it is not the full-size original of its group.
func HasVariantSuffix(filename string) bool {
	stem := strings.ToLower(norm.NFC.String(Stem(filename)))
	return NormalizeStem(stem) != stem
}

// HasExtension reports whether filename ends in one of exts (case-insensitive).
// Extensions may be given with or without the leading dot. An empty list matches everything.
func HasExtension(filename string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return false
	}
	for _, e := range exts {
		if strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".") == ext {
			return true
		}
	}
	return false
}
