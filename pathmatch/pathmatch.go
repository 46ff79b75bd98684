// Package pathmatch matches file-path patterns against normalized file
// paths, segment-wise. A pattern matches when its segment sequence occurs
// as a contiguous, whole-segment subsequence of the file's segments, so
// "abc/def" matches "x/abc/def/file.ts" but not "x/abcd/def/file.ts".
package pathmatch

import "strings"

// Normalize converts all separators to forward slashes and strips leading
// and trailing slashes.
func Normalize(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return strings.Trim(path, "/")
}

// Segments normalizes a path and splits it into non-empty segments.
func Segments(path string) []string {
	norm := Normalize(path)
	if norm == "" {
		return nil
	}
	parts := strings.Split(norm, "/")
	segs := parts[:0]
	for _, p := range parts {
		if p != "" {
			segs = append(segs, p)
		}
	}
	return segs
}

// Matches reports whether pattern occurs as a contiguous whole-segment
// subsequence anywhere in filePath. A pattern with more segments than the
// file cannot match. An empty pattern matches nothing.
func Matches(filePath, pattern string) bool {
	fileSegs := Segments(filePath)
	patSegs := Segments(pattern)

	if len(patSegs) == 0 || len(patSegs) > len(fileSegs) {
		return false
	}

	for start := 0; start+len(patSegs) <= len(fileSegs); start++ {
		if segmentsEqual(fileSegs[start:start+len(patSegs)], patSegs) {
			return true
		}
	}
	return false
}

func segmentsEqual(a, b []string) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
