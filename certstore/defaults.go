package certstore

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Environment variables overriding the default store locations.
const (
	EnvUserStore    = "TEMPLATEX_USER_STORE"
	EnvMachineStore = "TEMPLATEX_MACHINE_STORE"
)

// DefaultUserStoreDir returns the per-user store directory:
// $TEMPLATEX_USER_STORE, else <user config dir>/templatex/certs/my.
func DefaultUserStoreDir() (string, error) {
	if dir := os.Getenv(EnvUserStore); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "templatex", "certs", "my"), nil
}

// DefaultMachineStoreDir returns the machine-wide store directory:
// $TEMPLATEX_MACHINE_STORE, else a platform location.
func DefaultMachineStoreDir() string {
	if dir := os.Getenv(EnvMachineStore); dir != "" {
		return dir
	}
	return machineStoreDir()
}

// DefaultStores returns the user store followed by the machine store.
// The user store is omitted when no user config directory is available.
func DefaultStores(logger *slog.Logger) []Store {
	var stores []Store
	if dir, err := DefaultUserStoreDir(); err == nil {
		stores = append(stores, NewDirStore(dir, WithStoreName("user"), WithStoreLogger(logger)))
	} else if logger != nil {
		logger.Debug("user certificate store unavailable", "error", err)
	}
	stores = append(stores, NewDirStore(DefaultMachineStoreDir(), WithStoreName("machine"), WithStoreLogger(logger)))
	return stores
}

// DefaultResolver returns a resolver over DefaultStores.
func DefaultResolver(logger *slog.Logger) *Resolver {
	return NewResolver(logger, DefaultStores(logger)...)
}
