package backend

import (
	"maps"
	"regexp"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandArgs replaces ${NAME} in each argument with env[NAME]. Placeholders
// without a value are left as written.
func expandArgs(args []string, env map[string]string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = placeholder.ReplaceAllStringFunc(arg, func(match string) string {
			name := placeholder.FindStringSubmatch(match)[1]
			if value, ok := env[name]; ok {
				return value
			}
			return match
		})
	}
	return out
}

// mergeEnv overlays override onto base without modifying either.
func mergeEnv(base, override map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}
