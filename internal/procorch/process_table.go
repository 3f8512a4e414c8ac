package procorch

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// CommandRunner runs a helper program to completion and returns its combined
// output. Launchers take one so tests can stand in for the OS tools.
type CommandRunner func(name string, args ...string) ([]byte, error)

func ExecRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// ScanProcessTable lists the pids whose command line contains pattern, as
// reported by ps. The calling process is never included.
func ScanProcessTable(run CommandRunner, pattern string) ([]int, error) {
	output, err := run("ps", "-eo", "pid=,args=")
	if err != nil {
		return nil, err
	}
	return MatchProcessTable(output, pattern, os.Getpid()), nil
}

// MatchProcessTable parses "pid args..." lines and returns the pids whose
// args contain pattern, skipping self.
func MatchProcessTable(output []byte, pattern string, self int) []int {
	pids := []int{}
	if pattern == "" {
		return pids
	}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil || pid == self {
			continue
		}
		if strings.Contains(fields[1], pattern) {
			pids = append(pids, pid)
		}
	}

	return pids
}

// ScanPortTable lists the pids listening on any of the TCP ports, as reported
// by lsof. The calling process is never included.
func ScanPortTable(run CommandRunner, ports []int) ([]int, error) {
	if len(ports) == 0 {
		return []int{}, nil
	}

	list := make([]string, 0, len(ports))
	for _, port := range ports {
		list = append(list, strconv.Itoa(port))
	}

	output, err := run("lsof", "-nP", "-t", "-iTCP:"+strings.Join(list, ","), "-sTCP:LISTEN")
	if err != nil {
		// lsof exits non-zero when no process matches
		if errors.Is(err, exec.ErrNotFound) || len(bytes.TrimSpace(output)) > 0 {
			return nil, err
		}
		return []int{}, nil
	}
	return MatchPortTable(output, os.Getpid()), nil
}

// MatchPortTable parses the one-pid-per-line output of lsof -t, dropping
// duplicates and self.
func MatchPortTable(output []byte, self int) []int {
	pids := []int{}
	seen := map[int]bool{}

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil || pid == self || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}

	return pids
}
