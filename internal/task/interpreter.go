package task

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// LookPathFunc resolves an executable name; exec.LookPath in production.
type LookPathFunc func(file string) (string, error)

// interpreters maps a script extension to candidate launchers, tried in order.
// Each candidate is the program followed by the arguments that precede the script path.
var interpreters = map[string][][]string{
	".py":  {{"python3"}, {"python"}},
	".sh":  {{"sh"}},
	".ps1": {{"pwsh", "-NoProfile", "-File"}, {"powershell", "-NoProfile", "-File"}},
	".bat": {{"cmd", "/C"}},
	".cmd": {{"cmd", "/C"}},
}

// Command builds the argv for running path.
//
// override, when set, is split on whitespace and used as the launcher.
// Otherwise the launcher is chosen by extension; unknown extensions run path
// directly. The script itself never receives arguments.
func Command(path, override string, lookPath LookPathFunc) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("task path required")
	}
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if fields := strings.Fields(override); len(fields) > 0 {
		return append(fields, path), nil
	}

	candidates, ok := interpreters[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return []string{path}, nil
	}
	for _, c := range candidates {
		if _, err := lookPath(c[0]); err == nil {
			argv := append([]string(nil), c...)
			return append(argv, path), nil
		}
	}
	names := make([]string, 0, len(candidates))
	for _, c := range candidates {
		names = append(names, c[0])
	}
	return nil, fmt.Errorf("no interpreter for %s found on PATH (tried %s)", filepath.Base(path), strings.Join(names, ", "))
}
