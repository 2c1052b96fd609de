package file

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestHashingReader(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	expected := sha256.Sum256(data)

	hr := NewHashingReader(bytes.NewReader(data), sha256.New())
	got, err := io.ReadAll(hr)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("data = %q, want %q", got, data)
	}
	if sum := hr.Sum(); !bytes.Equal(sum, expected[:]) {
		t.Errorf("hash = %x, want %x", sum, expected)
	}
}

func TestEnsureNoExtra(t *testing.T) {
	t.Parallel()

	if err := EnsureNoExtra(strings.NewReader("")); err != nil {
		t.Errorf("EnsureNoExtra(empty) = %v, want nil", err)
	}
	if err := EnsureNoExtra(strings.NewReader("x")); !errors.Is(err, ErrSizeOverflow) {
		t.Errorf("EnsureNoExtra(extra) = %v, want %v", err, ErrSizeOverflow)
	}
}

func TestCountingWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	cw := &CountingWriter{W: &buf}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("de"))
	if cw.N != 5 {
		t.Errorf("N = %d, want 5", cw.N)
	}
}

func TestCopyWithContext(t *testing.T) {
	t.Parallel()

	src := strings.Repeat("x", 100)
	var dst bytes.Buffer
	n, err := CopyWithContext(context.Background(), &dst, strings.NewReader(src), make([]byte, 7))
	if err != nil {
		t.Fatalf("CopyWithContext() error = %v", err)
	}
	if n != 100 || dst.String() != src {
		t.Errorf("CopyWithContext() copied %d bytes, want 100", n)
	}
}
