//go:build linux

package workload

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

func lookupProcess(pid int) (ProcessInfo, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return ProcessInfo{}, errors.Wrapf(err, "cannot read process %d", pid)
	}

	content := string(data)
	// The command name is enclosed in parentheses and may itself contain them
	start := strings.Index(content, "(")
	end := strings.LastIndex(content, ")")
	if start < 0 || end < start || end+2 > len(content) {
		return ProcessInfo{}, errors.Errorf("invalid stat format for process %d", pid)
	}

	info := ProcessInfo{
		PID:     pid,
		Command: content[start+1 : end],
		User:    processUser(pid),
	}
	if rest := strings.Fields(content[end+2:]); len(rest) > 0 {
		info.State = rest[0]
	}
	return info, nil
}

func processUser(pid int) string {
	file, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return "?"
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Uid:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				return fields[1]
			}
		}
	}
	return "?"
}
