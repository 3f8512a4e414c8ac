package common

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

var participantFilePattern = regexp.MustCompile(`^participant_(\d+)\.json$`)

func ParticipantFileName(index int) string {
	return fmt.Sprintf("%s%d%s", PARTICIPANT_FILE_PREFIX, index, PARTICIPANT_FILE_EXT)
}

func ParticipantOutputName(index int) string {
	return fmt.Sprintf("%s%d%s", PARTICIPANT_FILE_PREFIX, index, PARTICIPANT_OUTPUT_EXT)
}

// ParseParticipantIndex extracts the index embedded in a participant file
// name such as "participant_12.json".
func ParseParticipantIndex(fileName string) (int, bool) {
	matches := participantFilePattern.FindStringSubmatch(filepath.Base(fileName))
	if len(matches) != 2 {
		return 0, false
	}

	index, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, false
	}

	return index, true
}

type IndexedFile struct {
	Index int
	Path  string
}

// ListParticipantFiles returns the participant files of a directory ordered
// by their numeric index.
func ListParticipantFiles(dir string) ([]IndexedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := []IndexedFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		index, ok := ParseParticipantIndex(entry.Name())
		if !ok {
			continue
		}
		files = append(files, IndexedFile{Index: index, Path: filepath.Join(dir, entry.Name())})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Index < files[j].Index
	})

	return files, nil
}

func ScenarioName(prefix string, federation string, t time.Time) string {
	if prefix == "" {
		prefix = DEFAULT_SCENARIO_PREFIX
	}
	return fmt.Sprintf("%s_%s_%s", prefix, federation, t.Format(SCENARIO_NAME_TIME_LAYOUT))
}

func FormatStartTime(t time.Time) string {
	return t.Format(START_TIME_LAYOUT)
}

// ParticipantUid is the hex SHA-1 of address, port and scenario name
// concatenated without separators.
func ParticipantUid(ip string, port int, scenarioName string) string {
	digest := sha1.Sum([]byte(ip + strconv.Itoa(port) + scenarioName))
	return hex.EncodeToString(digest[:])
}

func NeighborAddress(ip string, port int) string {
	return fmt.Sprintf("%s:%d", ip, port)
}

// IsSafeName reports whether name can be joined under a root directory
// without escaping it.
func IsSafeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return filepath.Base(name) == name
}
