package linkfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	input := "file_name\tcdn_link\n" +
		"sa_000000.tar\thttps://example.com/sa_000000.tar\n" +
		"sa_000001.tar\thttps://example.com/sa_000001.tar?sig=abc  \r\n" +
		"\n" +
		"sa_000002.tar\thttps://example.com/sa_000002.tar\n"

	tasks, skipped, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(skipped) != 0 {
		t.Errorf("expected no skipped lines, got %v", skipped)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if tasks[1].Name != "sa_000001.tar" {
		t.Errorf("expected name sa_000001.tar, got %s", tasks[1].Name)
	}
	if tasks[1].URL != "https://example.com/sa_000001.tar?sig=abc" {
		t.Errorf("expected trimmed URL, got %q", tasks[1].URL)
	}
	if tasks[2].Name != "sa_000002.tar" {
		t.Errorf("expected order preserved, got %s last", tasks[2].Name)
	}
}

func TestParseWithoutHeader(t *testing.T) {
	tasks, _, err := Parse(strings.NewReader("a.bin\thttp://host/a\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "a.bin" {
		t.Errorf("unexpected tasks: %+v", tasks)
	}
}

func TestParseSkipsMalformedLines(t *testing.T) {
	input := "a.bin\thttp://host/a\n" +
		"just-one-column\n" +
		"b.bin\thttp://host/b\textra\n" +
		"\thttp://host/noname\n" +
		"c.bin\thttp://host/c\n"

	tasks, skipped, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d: %+v", len(tasks), tasks)
	}
	if tasks[0].Name != "a.bin" || tasks[1].Name != "c.bin" {
		t.Errorf("unexpected tasks: %+v", tasks)
	}

	if len(skipped) != 3 {
		t.Fatalf("expected 3 skipped lines, got %d", len(skipped))
	}
	wantLines := []int{2, 3, 4}
	for i, pe := range skipped {
		if pe.Line != wantLines[i] {
			t.Errorf("skipped[%d]: expected line %d, got %d", i, wantLines[i], pe.Line)
		}
		if pe.Error() == "" {
			t.Errorf("skipped[%d]: empty error message", i)
		}
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.txt")
	if err := os.WriteFile(path, []byte("x\thttp://host/x\n"), 0644); err != nil {
		t.Fatalf("write link file: %v", err)
	}

	tasks, _, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(tasks))
	}
}

func TestParseFileNotFound(t *testing.T) {
	_, _, err := ParseFile("/nonexistent/links.txt")
	if err == nil {
		t.Error("expected error for missing link file")
	}
}
