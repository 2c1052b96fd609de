//go:build !windows

package certstore

func machineStoreDir() string {
	return "/etc/templatex/certs"
}
