package workspace

import (
	"errors"
	"testing"
)

func TestCleanPath(t *testing.T) {
	t.Parallel()

	valid := map[string]string{
		"a.txt":             "a.txt",
		"src/main.go":       "src/main.go",
		"src/./main.go":     "src/main.go",
		"docs/../src/a.go":  "src/a.go",
		"":                  "",
		".":                 "",
		"dir\\win\\file":    "dir/win/file",
		" padded.txt ":      "padded.txt",
		"trailing/slash/":   "trailing/slash",
	}
	for in, want := range valid {
		got, err := CleanPath(in)
		if err != nil {
			t.Errorf("CleanPath(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("CleanPath(%q) = %q, want %q", in, got, want)
		}
	}

	denied := []string{
		"..",
		"../evil",
		"a/../../evil",
		"/abs/path",
		"file\x00name",
	}
	for _, in := range denied {
		if _, err := CleanPath(in); !errors.Is(err, ErrPathDenied) {
			t.Errorf("CleanPath(%q): got %v, want ErrPathDenied", in, err)
		}
	}
}

func TestWithinMounts(t *testing.T) {
	t.Parallel()

	if !WithinMounts("anything/goes.txt", nil) {
		t.Error("empty mount list means the whole root")
	}

	mounts := []string{"src", "docs/api"}
	cases := map[string]bool{
		"src":              true,
		"src/main.go":      true,
		"src/sub/deep.go":  true,
		"srcx/evil.go":     false,
		"docs/api/a.md":    true,
		"docs/other.md":    false,
		"":                 false,
	}
	for path, want := range cases {
		if got := WithinMounts(path, mounts); got != want {
			t.Errorf("WithinMounts(%q, %v) = %v, want %v", path, mounts, got, want)
		}
	}
}
