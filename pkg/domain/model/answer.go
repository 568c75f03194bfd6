package model

// Source is a display source presented to the end user next to an answer.
type Source struct {
	Title string
	Link  string
}

// Answer is the result of a single query.
type Answer struct {
	Text      string
	Sources   []Source
	SessionID string
}

// MergeSources appends sources to dst, skipping entries already present.
func MergeSources(dst []Source, sources ...Source) []Source {
	for _, s := range sources {
		dup := false
		for _, d := range dst {
			if d == s {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, s)
		}
	}
	return dst
}
