package course

import "strings"

const notePrefix = "course:"

// FormatNote encodes the course intent carried through the payment provider
// as "course:<slug>|<title>". The format is shared with existing orders and
// must not change.
func FormatNote(slug, title string) string {
	return notePrefix + slug + "|" + title
}

// ParseNote extracts the slug and display title from a note produced by
// FormatNote. ok is false when the note carries no slug.
func ParseNote(note string) (slug, title string, ok bool) {
	note = strings.TrimSpace(note)
	if !strings.HasPrefix(note, notePrefix) {
		return "", "", false
	}
	rest := note[len(notePrefix):]
	slug, title, _ = strings.Cut(rest, "|")
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return "", "", false
	}
	return slug, title, true
}
