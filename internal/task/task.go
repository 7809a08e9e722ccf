package task

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Selection errors.
var (
	ErrNotFound      = errors.New("task: file not found in link list")
	ErrInvalidRange  = errors.New("task: invalid range")
	ErrUnknownMode   = errors.New("task: unknown selection mode")
	ErrDuplicateName = errors.New("task: duplicate file name")
	ErrInvalidName   = errors.New("task: invalid file name")
)

// Task is a single file to download. Name identifies the task and is the
// file name written under the output directory.
type Task struct {
	Name string
	URL  string
}

// Mode selects which tasks of a link list take part in a run.
type Mode string

const (
	// ModeAll selects every task.
	ModeAll Mode = "all"
	// ModeSingle selects the task whose name equals Selection.File.
	ModeSingle Mode = "single"
	// ModeRange selects tasks[Start..End], both inclusive.
	ModeRange Mode = "range"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAll, ModeSingle, ModeRange:
		return m, nil
	case "":
		return ModeAll, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Selection describes a subset of a link list.
type Selection struct {
	Mode  Mode
	File  string
	Start int
	End   int
}

// Select returns the tasks picked by sel, preserving their order.
// It never modifies tasks.
func Select(tasks []Task, sel Selection) ([]Task, error) {
	switch sel.Mode {
	case ModeAll, "":
		return tasks, nil

	case ModeSingle:
		for _, t := range tasks {
			if t.Name == sel.File {
				return []Task{t}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sel.File)

	case ModeRange:
		if sel.Start > sel.End {
			return nil, fmt.Errorf("%w: start %d > end %d", ErrInvalidRange, sel.Start, sel.End)
		}
		if sel.Start < 0 || sel.End >= len(tasks) {
			return nil, fmt.Errorf("%w: start=%d end=%d total=%d", ErrInvalidRange, sel.Start, sel.End, len(tasks))
		}
		return tasks[sel.Start : sel.End+1], nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, sel.Mode)
	}
}

// Validate rejects task lists with duplicate names or names that would
// escape the output directory.
func Validate(tasks []Task) error {
	seen := make(map[string]int, len(tasks))
	for i, t := range tasks {
		if err := ValidateName(t.Name); err != nil {
			return err
		}
		if j, ok := seen[t.Name]; ok {
			return fmt.Errorf("%w: %q at entries %d and %d", ErrDuplicateName, t.Name, j, i)
		}
		seen[t.Name] = i
	}
	return nil
}

// ValidateName checks that name is a plain file name.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), filepath.Base(name) != name:
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidName, name)
	}
	return nil
}

// SortByName returns a copy of tasks ordered by name.
func SortByName(tasks []Task) []Task {
	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})
	return sorted
}
