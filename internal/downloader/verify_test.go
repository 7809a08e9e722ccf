package downloader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ligustah/batchdl/internal/state"
)

func TestVerify(t *testing.T) {
	files := map[string][]byte{
		"good.bin":   testData(100, 1),
		"short.bin":  testData(100, 2),
		"gone.bin":   testData(100, 3),
		"remote.bin": testData(100, 4),
	}
	srv := newFileServer(t, files)
	dir := t.TempDir()
	store := openStore(t, memBucket(t))

	names := []string{"good.bin", "short.bin", "gone.bin", "remote.bin"}
	if _, err := Run(context.Background(), srv.tasks(names...), store, testOptions(dir)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if err := os.Truncate(filepath.Join(dir, "short.bin"), 50); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "gone.bin")); err != nil {
		t.Fatal(err)
	}
	// The source grows after the download.
	srv.mu.Lock()
	srv.files["remote.bin"] = testData(150, 4)
	srv.mu.Unlock()

	tasks := append(srv.tasks(names...), srv.tasks("new.bin")...)

	tests := []struct {
		name   string
		remote bool
		want   map[string]string // name -> substring of problem, "" means OK
	}{
		{
			name: "local",
			want: map[string]string{
				"good.bin":   "",
				"short.bin":  "on disk",
				"gone.bin":   "missing",
				"remote.bin": "",
				"new.bin":    "not completed",
			},
		},
		{
			name:   "remote",
			remote: true,
			want: map[string]string{
				"good.bin":   "",
				"short.bin":  "on disk",
				"gone.bin":   "missing",
				"remote.bin": "remote",
				"new.bin":    "remote check failed",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Verify(context.Background(), tasks, store, VerifyOptions{
				OutputDir: dir,
				Threads:   2,
				Remote:    tt.remote,
			})
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if len(results) != len(tasks) {
				t.Fatalf("expected %d results, got %d", len(tasks), len(results))
			}
			for i, res := range results {
				if res.Name != tasks[i].Name {
					t.Errorf("result %d: expected %s, got %s", i, tasks[i].Name, res.Name)
				}
				want := tt.want[res.Name]
				if want == "" {
					if !res.OK() {
						t.Errorf("%s: unexpected problem %q", res.Name, res.Problem)
					}
					continue
				}
				if !strings.Contains(res.Problem, want) {
					t.Errorf("%s: expected problem containing %q, got %q", res.Name, want, res.Problem)
				}
			}
		})
	}

	if p, _ := store.Get("good.bin"); p.Status != state.Completed {
		t.Errorf("Verify must not change state, got %s", p.Status)
	}
}
