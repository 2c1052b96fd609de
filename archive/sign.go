package archive

import (
	"fmt"
	"io"
	"os"

	"github.com/meigma/templatex/signature"
)

// AttachSignature stores block in the archive at path.
//
// The data, index and manifest sections are copied unchanged into a temp
// file followed by the new signature section and trailer, and the temp file
// then replaces path. Any existing signature is replaced.
func AttachSignature(path string, block *signature.Block) error {
	sig, err := block.Marshal()
	if err != nil {
		return fmt.Errorf("marshal signature: %w", err)
	}
	return writeSignature(path, sig)
}

func writeSignature(path string, sig []byte) error {
	a, err := Open(path)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			a.Close()
		}
	}()

	var perm os.FileMode
	if info, statErr := a.f.Stat(); statErr == nil {
		perm = info.Mode().Perm()
	}
	t := a.trailer
	body := io.NewSectionReader(a.f, 0, int64(t.Manifest.end())) //nolint:gosec // validated on open

	// The source must be closed before the rename replaces it.
	err = writeFileAtomic(path, func(f *os.File) error {
		if _, err := io.Copy(f, body); err != nil {
			return err
		}
		closed = true
		if err := a.Close(); err != nil {
			return err
		}
		if _, err := f.Write(sig); err != nil {
			return err
		}
		t.Signature = section{Offset: t.Manifest.end(), Length: uint64(len(sig))}
		_, err := f.Write(t.encode())
		return err
	})
	if err != nil {
		return fmt.Errorf("write signature: %w", err)
	}

	if perm != 0 {
		_ = os.Chmod(path, perm) //nolint:errcheck // best effort
	}
	return nil
}
