package assets

import (
	"bufio"
	"embed"
	"io/fs"
	"strings"
)

//go:embed achievements.txt migrations/*.sql
var FS embed.FS

func readLines(name string) ([]string, error) {
	f, err := FS.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		out = append(out, s)
	}
	return out, sc.Err()
}

// AchievementLines returns the non-comment lines of achievements.txt.
func AchievementLines() ([]string, error) {
	return readLines("achievements.txt")
}

// Migrations is the golang-migrate source tree rooted at migrations/.
func Migrations() (fs.FS, error) {
	return fs.Sub(FS, "migrations")
}
