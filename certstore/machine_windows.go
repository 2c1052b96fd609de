//go:build windows

package certstore

import (
	"os"
	"path/filepath"
)

func machineStoreDir() string {
	base := os.Getenv("ProgramData")
	if base == "" {
		base = `C:\ProgramData`
	}
	return filepath.Join(base, "templatex", "certs")
}
