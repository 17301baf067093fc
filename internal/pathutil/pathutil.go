// Package pathutil resolves container-relative paths the way a ZIP-based
// ebook container needs: POSIX-style ("/"-separated), independent of the
// host OS, with no filesystem access. path/filepath is deliberately not used
// here since it is OS-dependent (backslash-separated on Windows), and EPUB
// and MOBI both mandate "/" regardless of host.
package pathutil

import "strings"

// Join resolves rel against base the way a browser resolves a relative URL
// against its current document: an absolute rel (leading "/") replaces base
// entirely; an empty rel or "." yields base itself, cleaned; otherwise rel
// is joined onto base's directory and "." / ".." segments are resolved.
func Join(base, rel string) string {
	if rel == "" || rel == "." {
		return Clean(base)
	}
	if strings.HasPrefix(rel, "/") {
		return Clean(rel)
	}

	dir := Dir(base)
	var combined string
	if dir == "" {
		combined = rel
	} else {
		combined = dir + "/" + rel
	}
	return Clean(combined)
}

// Dir returns all but the final "/"-separated segment of p ("" if p has no
// directory component).
func Dir(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

// Base returns the final "/"-separated segment of p.
func Base(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}

// Ext returns the file extension of p, including the leading dot, or "" if
// there is none.
func Ext(p string) string {
	base := Base(p)
	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return ""
	}
	return base[idx:]
}

// Clean resolves "." and ".." segments out of p without touching the
// filesystem. A leading "/" is preserved; excess ".." segments at the root
// are dropped rather than erroring, matching how OPF-relative hrefs must
// never escape the container.
func Clean(p string) string {
	absolute := strings.HasPrefix(p, "/")
	segments := strings.Split(p, "/")

	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else if !absolute {
				out = append(out, "..")
			}
		default:
			out = append(out, seg)
		}
	}

	joined := strings.Join(out, "/")
	if absolute {
		return "/" + joined
	}
	return joined
}

// SplitFragment splits "path#fragment" into its path and fragment parts.
// fragment is "" when p has no "#".
func SplitFragment(p string) (path, fragment string) {
	idx := strings.IndexByte(p, '#')
	if idx < 0 {
		return p, ""
	}
	return p[:idx], p[idx+1:]
}
