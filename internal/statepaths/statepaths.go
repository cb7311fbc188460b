package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultStateDirName = ".lockbot"
	ConfigFilename      = "config.json"
)

// StateDir resolves state.dir, expanding a leading ~ and defaulting to
// ~/.lockbot.
func StateDir() string {
	return resolveDir(viper.GetString("state.dir"))
}

// ConfigFile is where the file backend keeps the configuration. An explicit
// state.config_file wins; a relative one is taken relative to StateDir.
func ConfigFile() string {
	return resolveFile(viper.GetString("state.dir"), viper.GetString("state.config_file"))
}

func resolveDir(dir string) string {
	dir = expandHome(strings.TrimSpace(dir))
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return DefaultStateDirName
		}
		return filepath.Join(home, DefaultStateDirName)
	}
	return filepath.Clean(dir)
}

func resolveFile(dir, file string) string {
	file = expandHome(strings.TrimSpace(file))
	if file == "" {
		return filepath.Join(resolveDir(dir), ConfigFilename)
	}
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(resolveDir(dir), file)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}
