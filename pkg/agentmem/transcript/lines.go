package transcript

import (
	"bufio"
	"bytes"
	"os"
)

// ReadLines reads at most maxLines non-empty lines from path, tolerating a
// trailing partial last line (a writer mid-append) by simply counting parse
// errors rather than aborting — a reader racing an active writer should
// never fail just because the last line isn't flushed yet.
func ReadLines(path string, maxLines int) (lines [][]byte, parseErrors int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	count := 0
	for scanner.Scan() {
		if maxLines > 0 && count >= maxLines {
			break
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
		count++
	}
	if scanErr := scanner.Err(); scanErr != nil {
		parseErrors++
	}
	return lines, parseErrors, nil
}

// LineCount counts non-empty lines in path without holding them in memory.
func LineCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	count := 0
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		count++
	}
	return count, scanner.Err()
}
