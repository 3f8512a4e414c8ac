package consolelauncher

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/procorch"
	"github.com/hashicorp/go-hclog"
)

// CommandLineRunner runs a complete, already quoted command line. cmd's start
// builtin needs its title argument quoted verbatim, which argument vectors
// cannot express.
type CommandLineRunner func(commandLine string) ([]byte, error)

// ConsoleLauncher opens a new cmd console per participant on Windows. The
// console title carries the scenario and participant names so it can be
// found again.
type ConsoleLauncher struct {
	options procorch.LauncherOptions
	run     procorch.CommandRunner
	runLine CommandLineRunner
	logger  hclog.Logger
}

func NewConsoleLauncher(options procorch.LauncherOptions, logger hclog.Logger) *ConsoleLauncher {
	return &ConsoleLauncher{
		options: options,
		run:     procorch.ExecRunner,
		runLine: runCommandLine,
		logger:  logger,
	}
}

func (launcher *ConsoleLauncher) SetRunner(run procorch.CommandRunner) {
	launcher.run = run
}

func (launcher *ConsoleLauncher) SetCommandLineRunner(runLine CommandLineRunner) {
	launcher.runLine = runLine
}

func (launcher *ConsoleLauncher) Name() string {
	return common.LAUNCHER_CONSOLE
}

// WindowTitle names the console of one participant, e.g.
// "demo_participant_3". Quotes are dropped since the title is quoted on the
// command line.
func WindowTitle(scenario string, index int) string {
	title := fmt.Sprintf("%s%d", common.PARTICIPANT_FILE_PREFIX, index)
	if scenario != "" {
		title = scenario + "_" + title
	}
	return strings.ReplaceAll(title, `"`, "")
}

// CommandLine builds the cmd line that opens the console of one participant.
// The console keeps running after the participant exits.
func (launcher *ConsoleLauncher) CommandLine(request procorch.LaunchRequest) (string, error) {
	args, err := launcher.options.Args(request.ConfigPath)
	if err != nil {
		return "", err
	}

	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, quoteArg(arg))
	}

	line := []string{"cmd", "/C", "start", `"` + WindowTitle(request.Scenario, request.Index) + `"`}
	if launcher.options.WorkDir != "" {
		line = append(line, "/D", quoteArg(launcher.options.WorkDir))
	}
	// cmd /k strips the outermost quotes of its command
	line = append(line, "cmd", "/k", `"`+strings.Join(quoted, " ")+`"`)

	return strings.Join(line, " "), nil
}

func (launcher *ConsoleLauncher) Launch(request procorch.LaunchRequest) (*procorch.Handle, error) {
	commandLine, err := launcher.CommandLine(request)
	if err != nil {
		return nil, err
	}

	launcher.logger.Debug(fmt.Sprintf("Opening console: %s", commandLine))
	if output, err := launcher.runLine(commandLine); err != nil {
		return nil, fmt.Errorf("start console: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return &procorch.Handle{
		Scenario:   request.Scenario,
		Index:      request.Index,
		ConfigPath: request.ConfigPath,
		Launcher:   common.LAUNCHER_CONSOLE,
		StartedAt:  time.Now(),
	}, nil
}

// Kill closes the participant console together with its process tree. Without
// a pid the console is matched by its exact title, which cmd extends with
// " - <command>" while the participant runs.
func (launcher *ConsoleLauncher) Kill(handle *procorch.Handle) error {
	if handle.Pid > 0 {
		if output, err := launcher.run("taskkill", "/F", "/T", "/PID", strconv.Itoa(handle.Pid)); err != nil {
			return fmt.Errorf("taskkill: %w: %s", err, strings.TrimSpace(string(output)))
		}
		return nil
	}

	title := WindowTitle(handle.Scenario, handle.Index)
	var errs []error
	for _, filter := range []string{"WINDOWTITLE eq " + title, "WINDOWTITLE eq " + title + " - *"} {
		if output, err := launcher.run("taskkill", "/F", "/T", "/FI", filter); err != nil {
			errs = append(errs, fmt.Errorf("taskkill %q: %w: %s", filter, err, strings.TrimSpace(string(output))))
		}
	}
	if len(errs) == 2 {
		return errors.Join(errs...)
	}
	return nil
}

func (launcher *ConsoleLauncher) KillByPattern(pattern string) (int, error) {
	output, err := launcher.run("tasklist", "/V", "/FO", "CSV", "/NH")
	if err != nil {
		return 0, err
	}

	pids, err := MatchTaskList(string(output), pattern)
	if err != nil {
		return 0, err
	}

	return launcher.killPids(pids)
}

// KillByPorts kills the processes listening on any of ports, as reported by
// netstat.
func (launcher *ConsoleLauncher) KillByPorts(ports []int) (int, error) {
	if len(ports) == 0 {
		return 0, nil
	}

	output, err := launcher.run("netstat", "-ano", "-p", "TCP")
	if err != nil {
		return 0, err
	}

	return launcher.killPids(MatchNetstat(string(output), ports))
}

func (launcher *ConsoleLauncher) killPids(pids []int) (int, error) {
	killed := 0
	var errs []error
	for _, pid := range pids {
		if output, err := launcher.run("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)); err != nil {
			errs = append(errs, fmt.Errorf("pid %d: %w: %s", pid, err, strings.TrimSpace(string(output))))
			continue
		}
		killed++
	}

	return killed, errors.Join(errs...)
}

// MatchTaskList returns the pids of verbose tasklist CSV rows whose image
// name or window title contains pattern.
func MatchTaskList(output string, pattern string) ([]int, error) {
	reader := csv.NewReader(strings.NewReader(output))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse tasklist output: %w", err)
	}

	pids := []int{}
	for _, record := range records {
		if len(record) < 2 {
			continue
		}
		pid, err := strconv.Atoi(record[1])
		if err != nil {
			continue
		}

		title := record[len(record)-1]
		if strings.Contains(record[0], pattern) || strings.Contains(title, pattern) {
			pids = append(pids, pid)
		}
	}

	return pids, nil
}

// MatchNetstat returns the pids of the LISTENING rows of netstat -ano whose
// local port is one of ports. Each pid appears once.
func MatchNetstat(output string, ports []int) []int {
	wanted := make(map[int]bool, len(ports))
	for _, port := range ports {
		wanted[port] = true
	}

	pids := []int{}
	seen := map[int]bool{}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 5 || fields[0] != "TCP" || fields[3] != "LISTENING" {
			continue
		}

		local := fields[1]
		separator := strings.LastIndex(local, ":")
		if separator < 0 {
			continue
		}
		port, err := strconv.Atoi(local[separator+1:])
		if err != nil || !wanted[port] {
			continue
		}

		pid, err := strconv.Atoi(fields[4])
		if err != nil || pid == 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}

	return pids
}

// quoteArg quotes s for the Windows argument parser when it contains blanks
// or quotes. Backslashes are only doubled in front of a quote.
func quoteArg(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"") {
		return s
	}

	var b strings.Builder
	b.WriteByte('"')
	slashes := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\\':
			slashes++
		case '"':
			b.WriteString(strings.Repeat(`\`, slashes+1))
			slashes = 0
		default:
			slashes = 0
		}
		b.WriteByte(c)
	}
	b.WriteString(strings.Repeat(`\`, slashes))
	b.WriteByte('"')
	return b.String()
}
