package workspace

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.periskope, or $PERISKOPE_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("PERISKOPE_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".periskope")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// TokenPath returns the file holding the CLI access token for a profile.
func TokenPath(name string) string {
	return filepath.Join(Dir(name), "token")
}

// AddUserStampPath returns the file recording the profile's last add-user attempt.
func AddUserStampPath(name string) string {
	return filepath.Join(Dir(name), "last_user_add")
}

// DataDir returns the default daemon data directory for a profile.
func DataDir(name string) string {
	return filepath.Join(Dir(name), "data")
}

// DBPath returns the daemon database path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "periskope.db")
}

// AttachmentsDir returns the attachment bucket root inside a data directory.
func AttachmentsDir(dataDir string) string {
	return filepath.Join(dataDir, "attachments")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file path of a component ("periskoped", "periskope").
func LogPath(name, component string) string {
	return filepath.Join(LogDir(name), component+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
