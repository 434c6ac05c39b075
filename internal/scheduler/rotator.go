package scheduler

import (
	"strings"

	"cadence/internal/domain"
)

// initialPointer derives the rotation pointer from history: the slot after
// the category of the most recent entry that carried one. Unknown or absent
// categories start at 0.
func initialPointer(def domain.TaskDefinition, entries []domain.LogEntry) int {
	n := len(def.Categories)
	if n == 0 {
		return 0
	}
	for _, e := range newestFirst(entries) {
		if e.Category == nil || strings.TrimSpace(*e.Category) == "" {
			continue
		}
		idx := categoryIndex(def.Categories, *e.Category)
		return (idx + 1) % n
	}
	return 0
}

// categoryIndex matches case-insensitively and returns -1 when absent.
func categoryIndex(categories []string, name string) int {
	name = strings.TrimSpace(name)
	for i, c := range categories {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// categoryAt returns the label the next commit would attach.
func categoryAt(def domain.TaskDefinition, pointer int) string {
	n := len(def.Categories)
	if n == 0 {
		return ""
	}
	return def.Categories[clampPointer(pointer, n)]
}

func clampPointer(p, n int) int {
	if n == 0 {
		return 0
	}
	p %= n
	if p < 0 {
		p += n
	}
	return p
}
