package roots

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/matzehuels/nixmirror/pkg/errors"
)

const storePaths = `/nix/store/0001w2k3pgl0pkrn827dxiibvc2sibnd-singleton-bool-0.1.5.tar.gz.drv
/nix/store/3qnm3nwjajgqa771dmi2dnwxrw0kzq5m-glibc-2.33

# duplicate
/nix/store/0001w2k3pgl0pkrn827dxiibvc2sibnd-singleton-bool-0.1.5.tar.gz.drv
`

var wantIDs = []string{"0001w2k3pgl0pkrn827dxiibvc2sibnd", "3qnm3nwjajgqa771dmi2dnwxrw0kzq5m"}

func compress(t *testing.T, format Format, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch format {
	case FormatXZ:
		w, err = xz.NewWriter(&buf)
	case FormatZstd:
		w, err = zstd.NewWriter(&buf)
	case FormatGzip:
		w = gzip.NewWriter(&buf)
	default:
		return []byte(data)
	}
	if err != nil {
		t.Fatalf("creating %s writer: %v", format, err)
	}
	if _, err := io.WriteString(w, data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadFormats(t *testing.T) {
	for _, format := range []Format{FormatPlain, FormatXZ, FormatZstd, FormatGzip} {
		t.Run(string(format), func(t *testing.T) {
			data := compress(t, format, storePaths)
			if got := Detect(data); got != format {
				t.Errorf("Detect() = %s, want %s", got, format)
			}

			ids, err := Read(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("Read() error: %v", err)
			}
			if !reflect.DeepEqual(ids, wantIDs) {
				t.Errorf("Read() = %v, want %v", ids, wantIDs)
			}
		})
	}
}

func TestReadEmpty(t *testing.T) {
	ids, err := Read(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Read() = %v, want none", ids)
	}
}

func TestReadBareIdentifiers(t *testing.T) {
	ids, err := Read(strings.NewReader("abc\n  def-name  \r\n"))
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if want := []string{"abc", "def"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Read() = %v, want %v", ids, want)
	}
}

func TestReadInvalidLine(t *testing.T) {
	_, err := Read(strings.NewReader("/nix/store/ok-a\n/nix/store/-noid\n"))
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Fatalf("Read() error = %v, want %s", err, errors.ErrCodeInvalidInput)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error = %v, want line number", err)
	}
}

func TestReadCorruptCompressed(t *testing.T) {
	data := compress(t, FormatXZ, storePaths)
	_, err := Read(bytes.NewReader(data[:len(data)/2]))
	if err == nil {
		t.Fatal("Read() should fail on a truncated xz stream")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store-paths.xz")
	if err := os.WriteFile(path, compress(t, FormatXZ, storePaths), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("ReadFile() = %v, want %v", ids, wantIDs)
	}

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, errors.ErrCodeFilesystem) {
		t.Errorf("ReadFile(missing) error = %v, want %s", err, errors.ErrCodeFilesystem)
	}
}

func TestFromArgs(t *testing.T) {
	ids, err := FromArgs([]string{"/nix/store/aaa-x", "aaa", "bbb-y-1.0"})
	if err != nil {
		t.Fatalf("FromArgs() error: %v", err)
	}
	if want := []string{"aaa", "bbb"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("FromArgs() = %v, want %v", ids, want)
	}

	if _, err := FromArgs([]string{""}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("FromArgs(\"\") error = %v, want %s", err, errors.ErrCodeInvalidInput)
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"a", "b"}, nil, []string{"b", "c", "a"})
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Merge() = %v, want %v", got, want)
	}
}
