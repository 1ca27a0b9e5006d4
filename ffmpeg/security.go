package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// managedFlags are set by the runner itself and may not be overridden.
var managedFlags = map[string]bool{
	"-i":              true,
	"-y":              true,
	"-n":              true,
	"-f":              true,
	"-map":            true,
	"-progress":       true,
	"-filter_complex": true,
}

// SplitArgs splits an argument string without invoking a shell.
func SplitArgs(s string) ([]string, error) {
	args, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid argument syntax: %w", err)
	}
	return args, nil
}

// SanitizeArgs rejects flags the runner manages and shell metacharacters.
func SanitizeArgs(args []string) error {
	for _, arg := range args {
		if managedFlags[arg] {
			return fmt.Errorf("flag %s is managed by the runner", arg)
		}
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}
	return nil
}
