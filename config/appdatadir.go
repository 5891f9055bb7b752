package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appDataDir returns an operating-system appropriate home directory for the
// named application.
func appDataDir(appName string) string {
	if appName == "" || appName == "." {
		return "."
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appName)
		}
	case "darwin":
		if home := homeDir(); home != "" {
			return filepath.Join(home, "Library", "Application Support", appName)
		}
	default:
		if home := homeDir(); home != "" {
			return filepath.Join(home, "."+appName)
		}
	}
	return "." + appName
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}
