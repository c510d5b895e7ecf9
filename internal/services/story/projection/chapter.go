package projection

import "strings"

const (
	chapterHeaderPrefix = "[Previous Chapter Summary: "
	chapterFooter       = "[End of Chapter Summary]"
	directionHeader     = "[Directions for continuing the story:]"
)

// RenderChapter formats a chapter summary. The direction block is only
// included when full is set and direction is non-empty.
func RenderChapter(title, summary, direction string, full bool) string {
	var b strings.Builder
	b.WriteString(chapterHeaderPrefix)
	b.WriteString(title)
	b.WriteString("]\n")
	b.WriteString(summary)
	b.WriteString("\n")
	b.WriteString(chapterFooter)
	if full && strings.TrimSpace(direction) != "" {
		b.WriteString("\n\n")
		b.WriteString(directionHeader)
		b.WriteString("\n")
		b.WriteString(direction)
	}
	return b.String()
}

func renderChapterSimplified(entry *contextEntry) string {
	return RenderChapter(entry.title, entry.summary, entry.direction, false)
}

func renderChapterFull(entry *contextEntry) string {
	return RenderChapter(entry.title, entry.summary, entry.direction, true)
}
