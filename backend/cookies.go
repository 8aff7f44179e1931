package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// ResolveCookiesBrowser maps a configured browser name to the engine's
// --cookies-from-browser value. LibreWolf is a Firefox fork the engine does
// not know by name, so its profile is resolved here and passed through the
// firefox loader.
func ResolveCookiesBrowser(browser string) (string, error) {
	browser = strings.ToLower(strings.TrimSpace(browser))
	switch browser {
	case "":
		return "", nil
	case "librewolf":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		profile, err := librewolfProfile(filepath.Join(home, ".librewolf"))
		if err != nil {
			return "", err
		}
		return "firefox:" + profile, nil
	default:
		return browser, nil
	}
}

// librewolfProfile picks the default profile path from a librewolf base
// directory. Install sections take priority over the Default=1 profile
// flag, matching how the browser itself resolves its profile.
func librewolfProfile(baseDir string) (string, error) {
	iniPath := filepath.Join(baseDir, "profiles.ini")
	file, err := ini.Load(iniPath)
	if err != nil {
		return "", fmt.Errorf("loading librewolf profiles: %w", err)
	}

	var fallback string
	for _, section := range file.Sections() {
		name := section.Name()
		if strings.HasPrefix(name, "Install") {
			if p := section.Key("Default").String(); p != "" {
				return filepath.Join(baseDir, p), nil
			}
		}
		if strings.HasPrefix(name, "Profile") {
			path := section.Key("Path").String()
			if path == "" {
				continue
			}
			if section.Key("Default").String() == "1" && fallback == "" {
				fallback = path
			}
			if fallback == "" && strings.Contains(path, ".default") {
				fallback = path
			}
		}
	}

	if fallback == "" {
		return "", fmt.Errorf("no default librewolf profile in %s", iniPath)
	}
	return filepath.Join(baseDir, fallback), nil
}
