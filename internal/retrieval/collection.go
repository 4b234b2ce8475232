package retrieval

import (
	"path/filepath"
	"strings"
)

// CollectionName returns the deterministic collection name for a course.
// ASCII letters, digits and '-' are kept; every other byte, '_' included, is
// written as '_' followed by two lowercase hex digits, so distinct course ids
// never share a name.
func CollectionName(course string) string {
	const hex = "0123456789abcdef"
	var b strings.Builder
	b.WriteString("course_")
	for i := 0; i < len(course); i++ {
		c := course[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

// CollectionPath returns the database file for a course under dataDir.
func CollectionPath(dataDir, course string) string {
	return filepath.Join(dataDir, "collections", CollectionName(course)+".db")
}
