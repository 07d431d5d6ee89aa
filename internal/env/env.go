package env

import (
	"bufio"
	"os"
	"strings"
)

// Load reads .env-style files and sets any variable not already present in
// the environment. Missing files are skipped silently.
func Load(paths ...string) {
	pre := map[string]struct{}{}
	for _, e := range os.Environ() {
		if i := strings.IndexByte(e, '='); i > 0 {
			pre[e[:i]] = struct{}{}
		}
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if strings.HasPrefix(line, "export ") {
				line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
			}
			i := strings.IndexByte(line, '=')
			if i <= 0 {
				continue
			}
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			if j := strings.Index(v, " #"); j >= 0 {
				v = strings.TrimSpace(v[:j])
			}
			if (strings.HasPrefix(v, "\"") && strings.HasSuffix(v, "\"")) || (strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'")) {
				v = v[1 : len(v)-1]
			}
			if _, ok := pre[k]; ok {
				continue
			}
			_ = os.Setenv(k, v)
		}
		_ = f.Close()
	}
}
