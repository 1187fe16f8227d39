// Package nameenc converts raw head names into stable filesystem-safe
// identifiers. Encoding is total and deterministic: any input string maps to
// exactly one bounded-length encoded name, and distinct inputs map to
// distinct outputs in practice (a blake3-derived suffix carries the
// collision-resistance burden). The raw name is not recoverable from the
// encoded form; callers keep it verbatim as the display name.
package nameenc

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"
)

const (
	// segmentMax is the number of runes of a segment kept before escaping
	segmentMax = 32

	// segmentHashLen / nameHashLen are hex characters of the blake3 digest
	// appended to escaped segments and to the whole-name fallback
	segmentHashLen = 8
	nameHashLen    = 16

	// encodedMax caps the joined encoding; longer results fall back to a
	// single truncated segment plus a whole-name hash
	encodedMax = 200
)

// Normalize returns the canonical Unicode form of a head name. Two names
// that differ only in combining-character sequences normalize identically,
// so they share one job identity and one encoding.
func Normalize(name string) string {
	return norm.NFC.String(name)
}

// Encode converts a raw head name to its stable safe identifier.
//
// A name consisting only of letters, digits, '-' and '_' is returned
// unchanged if it fits the length cap and does not itself look like an
// encoder output (such a name can never be "." or ".."). Anything else is
// split on path separators; each segment is escaped, truncated and suffixed
// with a hash of the full original segment, and the segments are joined
// with '-'.
func Encode(raw string) string {
	name := Normalize(raw)
	if isSafe(name) && len(name) <= encodedMax && !looksGenerated(name) {
		return name
	}

	// Split preserves empty segments: "a//b" and "a/b" must not collide
	segments := splitSegments(name)

	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		parts = append(parts, encodeSegment(seg))
	}

	encoded := strings.Join(parts, "-")
	if len(encoded) > encodedMax {
		// Deeply nested or very long names collapse to a single truncated
		// prefix disambiguated by a hash of the whole normalized name
		encoded = escape(truncate(name, segmentMax)) + "-" + hashHex(name, nameHashLen)
	}
	return encoded
}

// encodeSegment escapes one path segment and appends the hash of its
// original text, so two segments that escape to the same literal still
// encode differently.
func encodeSegment(seg string) string {
	if seg == "" {
		return hashHex(seg, segmentHashLen)
	}
	return escape(truncate(seg, segmentMax)) + "-" + hashHex(seg, segmentHashLen)
}

// splitSegments splits on path separators, keeping empty segments. The
// result always has at least one element.
func splitSegments(name string) []string {
	segments := []string{}
	start := 0
	for i, r := range name {
		if isSeparator(r) {
			segments = append(segments, name[start:i])
			start = i + 1 // separators are single-byte
		}
	}
	return append(segments, name[start:])
}

func isSafe(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !isSafeRune(r) {
			return false
		}
	}
	return true
}

func isSafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// looksGenerated reports whether a name already has the shape of an encoder
// output: a lone segment hash, or a trailing hash suffix. Every generated
// encoding ends in "-" plus 8 or 16 hex characters (or is a bare 8-char hex
// token, for the empty name), so routing such raw names through the
// escape+hash path keeps the passthrough space and the generated space
// disjoint: a raw name can never equal another name's encoding.
func looksGenerated(name string) bool {
	if len(name) == segmentHashLen && isHex(name) {
		return true
	}
	for _, n := range []int{segmentHashLen, nameHashLen} {
		if len(name) > n && name[len(name)-n-1] == '-' && isHex(name[len(name)-n:]) {
			return true
		}
	}
	return false
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// escape replaces every disallowed rune with '_'. The result is ASCII, so
// its byte length equals its rune count.
func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isSafeRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

func hashHex(s string, n int) string {
	sum := blake3.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:n]
}
