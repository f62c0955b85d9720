// Package source prepares program text for the GFA-BASIC editor.
//
// The editor only accepts two-byte CR LF line terminators and refuses to merge
// files with bare LF endings.
package source

import (
	"fmt"
	"os"
)

const (
	cr = 0x0D
	lf = 0x0A
)

// Normalize returns b with a CR inserted before every LF that is not already
// preceded by one. All other bytes are copied unchanged. The result is never
// shorter than b, and Normalize(Normalize(b)) equals Normalize(b).
func Normalize(b []byte) []byte {
	missing := 0
	for i, c := range b {
		if c == lf && (i == 0 || b[i-1] != cr) {
			missing++
		}
	}
	if missing == 0 {
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}

	out := make([]byte, 0, len(b)+missing)
	for i, c := range b {
		if c == lf && (i == 0 || b[i-1] != cr) {
			out = append(out, cr)
		}
		out = append(out, c)
	}
	return out
}

// NormalizeFile rewrites the file at path in place so that every line ends in
// CR LF. When the file already conforms it is left untouched and changed is
// false; no write is performed.
func NormalizeFile(path string) (changed bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat source: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read source: %w", err)
	}

	fixed := Normalize(data)
	if len(fixed) == len(data) {
		return false, nil
	}

	if err := os.WriteFile(path, fixed, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("rewrite source %s: %w", path, err)
	}
	return true, nil
}
