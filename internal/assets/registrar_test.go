package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeRegistry struct {
	files map[string]StaticFile
	calls int
}

func (r *fakeRegistry) AddStaticFile(f StaticFile) {
	if r.files == nil {
		r.files = make(map[string]StaticFile)
	}
	r.files[f.Name] = f
	r.calls++
}

// ---------------------------------------------------------------------------
// TestRegistrar - Artifact registration
// ---------------------------------------------------------------------------

func TestRegistrar_Register(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"b.svg":    "/cache/b.svg",
		"a.svg":    "/cache/a.svg",
		".tmp-123": "/cache/.tmp-123",
	}

	tests := []struct {
		name    string
		public  string
		wantURL string
	}{
		{name: "default prefix", public: "", wantURL: "/assets/math/a.svg"},
		{name: "custom prefix with slash", public: "/static/tex/", wantURL: "/static/tex/a.svg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg := &fakeRegistry{}
			n := Registrar{PublicPath: tt.public}.Register(reg, files)

			if n != 2 {
				t.Errorf("Register() = %d, want 2 (temp file skipped)", n)
			}
			a := reg.files["a.svg"]
			if a.URL != tt.wantURL || a.SourcePath != "/cache/a.svg" {
				t.Errorf("a.svg = %+v", a)
			}
		})
	}
}

func TestRegistrar_Idempotent(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistry{}
	r := Registrar{}
	files := map[string]string{"a.svg": "/cache/a.svg"}

	r.Register(reg, files)
	r.Register(reg, files)

	if len(reg.files) != 1 {
		t.Errorf("registry has %d files, want 1", len(reg.files))
	}
}

func TestRegistrar_FilesSorted(t *testing.T) {
	t.Parallel()

	got := Registrar{}.Files(map[string]string{"c.svg": "c", "a.svg": "a", "b.svg": "b"})
	if len(got) != 3 || got[0].Name != "a.svg" || got[2].Name != "c.svg" {
		t.Errorf("Files() = %+v", got)
	}
}

// ---------------------------------------------------------------------------
// TestCopyTo - Output tree
// ---------------------------------------------------------------------------

func TestCopyTo(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	src := filepath.Join(cacheDir, "k.svg")
	if err := os.WriteFile(src, []byte("<svg/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	css, err := Stylesheet(NewEmbeddedLoader())
	if err != nil {
		t.Fatalf("Stylesheet() error = %v", err)
	}

	dest := t.TempDir()
	files := append(Registrar{}.Files(map[string]string{"k.svg": src}), css)
	if err := CopyTo(dest, files); err != nil {
		t.Fatalf("CopyTo() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "assets", "math", "k.svg"))
	if err != nil || string(data) != "<svg/>" {
		t.Errorf("artifact copy = %q, %v", data, err)
	}
	data, err = os.ReadFile(filepath.Join(dest, "assets", "css", "math.css"))
	if err != nil || len(data) == 0 {
		t.Errorf("stylesheet copy = %q, %v", data, err)
	}

	// A second copy is a no-op for unchanged artifacts.
	if err := CopyTo(dest, files); err != nil {
		t.Errorf("second CopyTo() error = %v", err)
	}
}

func TestCopyTo_ReplacesStaleSameSize(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "k.svg")
	if err := os.WriteFile(src, []byte("<svg a/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()
	dst := filepath.Join(dest, "assets", "math", "k.svg")
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("<svg b/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyTo(dest, Registrar{}.Files(map[string]string{"k.svg": src})); err != nil {
		t.Fatalf("CopyTo() error = %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "<svg a/>" {
		t.Errorf("stale artifact kept: %q, %v", data, err)
	}
}

func TestCopyTo_Errors(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()

	err := CopyTo(dest, []StaticFile{{Name: "x.svg", SourcePath: filepath.Join(dest, "missing"), URL: "/assets/math/x.svg"}})
	if !errors.Is(err, ErrCopy) {
		t.Errorf("missing source: error = %v, want ErrCopy", err)
	}

	err = CopyTo(dest, []StaticFile{{Name: "x", Content: []byte("x"), URL: "/"}})
	if !errors.Is(err, ErrCopy) {
		t.Errorf("empty path: error = %v, want ErrCopy", err)
	}
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	root := filepath.Join(string(filepath.Separator), "site")

	tests := []struct {
		url  string
		want string
	}{
		{"/assets/math/a.svg", filepath.Join(root, "assets", "math", "a.svg")},
		{"https://cdn.example/assets/math/a.svg", filepath.Join(root, "assets", "math", "a.svg")},
		{"/../../etc/passwd", filepath.Join(root, "etc", "passwd")},
	}

	for _, tt := range tests {
		got, err := outputPath(root, tt.url)
		if err != nil || got != tt.want {
			t.Errorf("outputPath(%q) = %q, %v; want %q", tt.url, got, err, tt.want)
		}
	}
}
