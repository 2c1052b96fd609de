package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/meigma/templatex"
	"github.com/meigma/templatex/certstore"
)

// Configuration keys. Each is also read from TEMPLATEX_<KEY>.
const (
	keyUserStore    = "user_store"
	keyMachineStore = "machine_store"
	keyWorkDir      = "work_dir"
	keyContentType  = "content_type"
	keyCompression  = "compression"
)

// Flag names bound over the configuration keys.
const (
	flagUserStore    = "user-store"
	flagMachineStore = "machine-store"
	flagWorkDir      = "work-dir"
	flagContentType  = "content-type"
	flagCompression  = "compression"
)

var flagKeys = map[string]string{
	flagUserStore:    keyUserStore,
	flagMachineStore: keyMachineStore,
	flagWorkDir:      keyWorkDir,
	flagContentType:  keyContentType,
	flagCompression:  keyCompression,
}

// ConfigDir returns the templatex configuration directory: %APPDATA% on
// Windows, $XDG_CONFIG_HOME (defaulting to ~/.config) elsewhere.
func ConfigDir() (string, error) {
	var dir string
	if runtime.GOOS == "windows" {
		dir = os.Getenv("APPDATA")
	} else {
		dir = os.Getenv("XDG_CONFIG_HOME")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "templatex"), nil
}

// loadConfig reads the config file and environment, then binds the flags
// of the running command over them.
func (a *app) loadConfig(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix("TEMPLATEX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(keyCompression, "zstd")

	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			a.logger.Debug("no config directory", "error", err)
			return a.bindFlags(cmd)
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	} else {
		a.logger.Debug("loaded config", "file", v.ConfigFileUsed())
	}
	return a.bindFlags(cmd)
}

// bindFlags binds the flags defined on cmd (local or inherited). Binding
// happens per invocation since several commands share a key.
func (a *app) bindFlags(cmd *cobra.Command) error {
	var err error
	bind := func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = a.v.BindPFlag(key, f)
	}
	cmd.InheritedFlags().VisitAll(bind)
	cmd.LocalFlags().VisitAll(bind)
	return err
}

// options translates the configuration into library options.
func (a *app) options() ([]templatex.Option, error) {
	opts := []templatex.Option{templatex.WithLogger(a.logger)}

	switch c := strings.ToLower(a.v.GetString(keyCompression)); c {
	case "zstd", "":
		opts = append(opts, templatex.WithCompression(templatex.CompressionZstd))
	case "none":
		opts = append(opts, templatex.WithCompression(templatex.CompressionNone))
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}

	if dir := a.v.GetString(keyWorkDir); dir != "" {
		opts = append(opts, templatex.WithWorkDir(dir))
	}

	userDir := a.v.GetString(keyUserStore)
	if userDir == "" {
		if dir, err := certstore.DefaultUserStoreDir(); err == nil {
			userDir = dir
		}
	}
	machineDir := a.v.GetString(keyMachineStore)
	if machineDir == "" {
		machineDir = certstore.DefaultMachineStoreDir()
	}
	var stores []certstore.Store
	if userDir != "" {
		stores = append(stores, certstore.NewDirStore(userDir,
			certstore.WithStoreName("user"), certstore.WithStoreLogger(a.logger)))
	}
	stores = append(stores, certstore.NewDirStore(machineDir,
		certstore.WithStoreName("machine"), certstore.WithStoreLogger(a.logger)))
	opts = append(opts, templatex.WithStores(stores...))

	return opts, nil
}

func (a *app) contentType() string {
	return a.v.GetString(keyContentType)
}
