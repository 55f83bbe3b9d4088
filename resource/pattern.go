package resource

import (
	"path"
	"strings"
)

const anySegments = "**"

// pattern is a compiled Ant-style path pattern. "*" and "?" match within a
// single segment, "**" matches zero or more whole segments.
type pattern struct {
	raw      string
	segments []string
}

func compilePattern(raw string) (pattern, error) {
	segments := splitPath(raw)
	for _, seg := range segments {
		if seg == anySegments {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return pattern{}, err
		}
	}

	return pattern{raw: raw, segments: segments}, nil
}

func (p pattern) match(requestPath string) bool {
	return matchSegments(p.segments, splitPath(requestPath))
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == anySegments {
			// Collapse consecutive "**" and try every split point.
			for len(pat) > 0 && pat[0] == anySegments {
				pat = pat[1:]
			}
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pat, segs[i:]) {
					return true
				}
			}
			return false
		}

		if len(segs) == 0 {
			return false
		}

		ok, err := path.Match(pat[0], segs[0])
		if err != nil || !ok {
			return false
		}

		pat, segs = pat[1:], segs[1:]
	}

	return len(segs) == 0
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}

	return strings.Split(p, "/")
}
