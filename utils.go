package bigstash

import (
	"path/filepath"
	"strings"
)

// ToPosix converts a local path to forward slash form. Paths sent to the
// service always use this form, whatever the host separator.
func ToPosix(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), `\`, "/")
}

// CommonDir returns the longest common directory of the given absolute
// paths, compared component by component, in forward slash form. It
// returns "" for an empty input or when the paths share nothing.
func CommonDir(paths ...string) string {
	if len(paths) == 0 {
		return ""
	}

	common := splitPosix(ToPosix(paths[0]))
	for _, p := range paths[1:] {
		parts := splitPosix(ToPosix(p))
		n := min(len(common), len(parts))
		i := 0
		for i < n && common[i] == parts[i] {
			i++
		}
		common = common[:i]
	}

	if len(common) == 0 {
		return ""
	}
	if len(common) == 1 && common[0] == "" {
		return "/"
	}
	return strings.Join(common, "/")
}

// splitPosix splits p into components. An absolute path starts with an
// empty component.
func splitPosix(p string) []string {
	if p == "/" {
		return []string{""}
	}
	return strings.Split(strings.TrimRight(p, "/"), "/")
}

// RelPosix returns p relative to base, both in forward slash form. p is
// returned unchanged when it is not inside base.
func RelPosix(base, p string) string {
	p = ToPosix(p)
	switch base {
	case "":
		return strings.TrimLeft(p, "/")
	case "/":
		return strings.TrimPrefix(p, "/")
	}
	if rest, ok := strings.CutPrefix(p, base+"/"); ok {
		return rest
	}
	return p
}
