package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"kanbansync/internal/utils"
)

// rcPrefix selects the rc file lines that are read.
const rcPrefix = "VIKUNJA_"

var (
	rcMu    sync.Mutex
	rcCache = map[string]map[string]string{}
)

// LoadRCFile returns the VIKUNJA_* variables assigned in a shell rc file.
// Each path is read at most once per process. A missing file yields an
// empty map.
func LoadRCFile(path string) (map[string]string, error) {
	path = ExpandPath(path)

	rcMu.Lock()
	defer rcMu.Unlock()

	if vars, ok := rcCache[path]; ok {
		return vars, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		rcCache[path] = map[string]string{}
		return rcCache[path], nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rc file %s: %w", path, err)
	}

	vars, err := ParseRC(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rc file %s: %w", path, err)
	}
	utils.Debugf("loaded %d %s* variables from %s", len(vars), rcPrefix, path)
	rcCache[path] = vars
	return vars, nil
}

// ParseRC extracts VIKUNJA_* assignments, optionally prefixed with
// "export", from shell rc content. Everything else in the file (functions,
// aliases, other exports) is ignored, and so are assignments that do not
// parse. A later assignment wins.
func ParseRC(content string) (map[string]string, error) {
	vars := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		if !strings.HasPrefix(line, rcPrefix) || !strings.Contains(line, "=") {
			continue
		}
		parsed, err := godotenv.Unmarshal(line)
		if err != nil {
			utils.Debugf("skipping rc line %q: %v", line, err)
			continue
		}
		for k, v := range parsed {
			vars[k] = v
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return vars, nil
}
