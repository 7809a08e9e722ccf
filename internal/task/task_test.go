package task

import (
	"errors"
	"fmt"
	"testing"
)

func makeTasks(n int) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{
			Name: fmt.Sprintf("sa_%06d.tar", i),
			URL:  fmt.Sprintf("https://example.com/sa_%06d.tar", i),
		}
	}
	return tasks
}

func TestSelectAll(t *testing.T) {
	tasks := makeTasks(5)
	got, err := Select(tasks, Selection{Mode: ModeAll})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != len(tasks) {
		t.Fatalf("expected %d tasks, got %d", len(tasks), len(got))
	}
	for i := range tasks {
		if got[i] != tasks[i] {
			t.Errorf("task %d: got %+v, want %+v", i, got[i], tasks[i])
		}
	}
}

func TestSelectSingle(t *testing.T) {
	tasks := makeTasks(5)
	got, err := Select(tasks, Selection{Mode: ModeSingle, File: "sa_000003.tar"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0] != tasks[3] {
		t.Errorf("expected [%+v], got %+v", tasks[3], got)
	}
}

func TestSelectSingleNotFound(t *testing.T) {
	_, err := Select(makeTasks(3), Selection{Mode: ModeSingle, File: "missing.tar"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSelectRange(t *testing.T) {
	tasks := makeTasks(10)

	for start := 0; start < len(tasks); start++ {
		for end := start; end < len(tasks); end++ {
			got, err := Select(tasks, Selection{Mode: ModeRange, Start: start, End: end})
			if err != nil {
				t.Fatalf("Select(%d, %d): %v", start, end, err)
			}
			if len(got) != end-start+1 {
				t.Fatalf("Select(%d, %d): expected %d tasks, got %d", start, end, end-start+1, len(got))
			}
			for i, task := range got {
				if task != tasks[start+i] {
					t.Fatalf("Select(%d, %d): task %d out of order", start, end, i)
				}
			}
		}
	}
}

func TestSelectRangeInvalid(t *testing.T) {
	tasks := makeTasks(3)
	tests := []struct {
		name       string
		start, end int
	}{
		{"start after end", 2, 1},
		{"end out of bounds", 0, 3},
		{"start out of bounds", 3, 3},
		{"negative start", -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Select(tasks, Selection{Mode: ModeRange, Start: tt.start, End: tt.end})
			if !errors.Is(err, ErrInvalidRange) {
				t.Errorf("expected ErrInvalidRange, got %v", err)
			}
		})
	}
}

func TestSelectRangeEmptyList(t *testing.T) {
	_, err := Select(nil, Selection{Mode: ModeRange, Start: 0, End: 0})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestSelectUnknownMode(t *testing.T) {
	_, err := Select(makeTasks(1), Selection{Mode: "some"})
	if !errors.Is(err, ErrUnknownMode) {
		t.Errorf("expected ErrUnknownMode, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"all", ModeAll, false},
		{"Single", ModeSingle, false},
		{" range ", ModeRange, false},
		{"", ModeAll, false},
		{"every", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMode(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		tasks   []Task
		wantErr error
	}{
		{"valid", makeTasks(3), nil},
		{"duplicate", []Task{{Name: "a", URL: "u1"}, {Name: "b", URL: "u2"}, {Name: "a", URL: "u3"}}, ErrDuplicateName},
		{"path separator", []Task{{Name: "../etc/passwd", URL: "u"}}, ErrInvalidName},
		{"dot dot", []Task{{Name: "..", URL: "u"}}, ErrInvalidName},
		{"empty", []Task{{Name: "", URL: "u"}}, ErrInvalidName},
		{"backslash", []Task{{Name: `dir\file`, URL: "u"}}, ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.tasks)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSortByName(t *testing.T) {
	tasks := []Task{{Name: "c"}, {Name: "a"}, {Name: "b"}}
	sorted := SortByName(tasks)

	want := []string{"a", "b", "c"}
	for i, name := range want {
		if sorted[i].Name != name {
			t.Errorf("position %d: got %s, want %s", i, sorted[i].Name, name)
		}
	}
	if tasks[0].Name != "c" {
		t.Error("SortByName modified its input")
	}
}
