package document

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// bom is the UTF-8 byte order mark some editors put at the start of a file.
const bom = "\uFEFF"

// ReadList reads an ordered document list: one path per line. Blank lines and
// lines starting with "//" are skipped. Relative paths resolve against the
// directory of the list file.
func ReadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("document list: %w", err)
	}
	defer f.Close()

	base := filepath.Dir(path)
	var out []string
	sc := bufio.NewScanner(f)
	for first := true; sc.Scan(); first = false {
		line := sc.Text()
		if first {
			line = strings.TrimPrefix(line, bom)
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("document list: %w", err)
	}
	return out, nil
}
