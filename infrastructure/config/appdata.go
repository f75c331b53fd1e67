package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// appDataDir returns an operating system specific directory to be used for
// storing application data for an application.
//
// The returned directory is %LOCALAPPDATA%\Appname on Windows,
// ~/Library/Application Support/Appname on macOS and ~/.appname on other
// POSIX systems. The current working directory is used when the home
// directory cannot be determined.
func appDataDir(appName string) string {
	appName = strings.TrimPrefix(appName, ".")
	if appName == "" {
		return "."
	}
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}
	case "darwin":
		return filepath.Join(homeDir, "Library", "Application Support", appNameUpper)
	}

	return filepath.Join(homeDir, "."+appNameLower)
}
