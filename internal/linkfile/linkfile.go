// Package linkfile reads tab-separated link lists.
//
// Each record is "file_name<TAB>url". A first line starting with
// "file_name" is treated as a header. Blank lines are ignored; any other
// line without exactly two non-empty columns is skipped and reported as a
// ParseError.
package linkfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ligustah/batchdl/internal/task"
)

const headerPrefix = "file_name"

// maxLineSize bounds a single record; signed URLs can be long.
const maxLineSize = 1024 * 1024

// ParseError describes a skipped line.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Parse reads tasks from r in file order. Malformed lines do not stop
// parsing; they are returned in skipped.
func Parse(r io.Reader) (tasks []task.Task, skipped []*ParseError, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")

		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			if strings.HasPrefix(line, headerPrefix) {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) != 2 {
			skipped = append(skipped, &ParseError{
				Line:   lineNo,
				Text:   line,
				Reason: fmt.Sprintf("expected 2 tab-separated columns, got %d", len(cols)),
			})
			continue
		}

		name := strings.TrimSpace(cols[0])
		url := strings.TrimSpace(cols[1])
		if name == "" || url == "" {
			skipped = append(skipped, &ParseError{
				Line:   lineNo,
				Text:   line,
				Reason: "empty file name or url",
			})
			continue
		}

		tasks = append(tasks, task.Task{Name: name, URL: url})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read link file: %w", err)
	}

	return tasks, skipped, nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) ([]task.Task, []*ParseError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open link file: %w", err)
	}
	defer f.Close()

	return Parse(f)
}
