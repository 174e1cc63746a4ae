package shell

import (
	"os"
	"regexp"
	"strings"
)

var reEnv = regexp.MustCompile(`\${([^}{]+)}`)

// ReplaceEnvVars - `${NAME}` and `${NAME:default}`, unknown names stay as is
func ReplaceEnvVars(text string) string {
	return reEnv.ReplaceAllStringFunc(text, func(match string) string {
		key := match[2 : len(match)-1]

		var def string
		var dok bool

		if i := strings.IndexByte(key, ':'); i > 0 {
			key, def = key[:i], key[i+1:]
			dok = true
		}

		if value, vok := os.LookupEnv(key); vok {
			return value
		}

		if dok {
			return def
		}

		return match
	})
}
