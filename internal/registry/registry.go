package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/common"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/jsondoc"
	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/model"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
	"github.com/tidwall/jsonc"
)

var (
	ErrConfigNotFound  = errors.New("no participant configuration found")
	ErrMalformedConfig = errors.New("malformed participant configuration")
	ErrUnknownIndex    = errors.New("unknown participant index")
)

// ErrNoParticipantsFound is the name the orchestration layer reports for an
// empty configuration directory.
var ErrNoParticipantsFound = ErrConfigNotFound

// requiredFields lists the keys every participant file must carry, per section.
var requiredFields = []struct {
	section string
	keys    []string
}{
	{"device_args", []string{"idx", "uid", "start"}},
	{"network_args", []string{"ip", "port", "ipdemo", "neighbors"}},
	{"scenario_args", []string{"federation", "n_nodes", "name", "start_time"}},
	{"geo_args", []string{"latitude", "longitude"}},
	{"tracking_args", []string{"log_dir", "config_dir"}},
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

type ParticipantRegistry struct {
	logger       hclog.Logger
	configDir    string
	participants []*model.ParticipantConfig
}

func NewParticipantRegistry(logger hclog.Logger) *ParticipantRegistry {
	return &ParticipantRegistry{
		logger:       logger,
		participants: []*model.ParticipantConfig{},
	}
}

// Load reads every participant file of configDir ordered by the index in its
// name. Indices must form the contiguous range 0..N-1.
func (registry *ParticipantRegistry) Load(configDir string) ([]*model.ParticipantConfig, error) {
	files, err := common.ListParticipantFiles(configDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: directory %s does not exist", ErrConfigNotFound, configDir)
		}
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s contains no %s<index>%s files", ErrConfigNotFound, configDir,
			common.PARTICIPANT_FILE_PREFIX, common.PARTICIPANT_FILE_EXT)
	}

	participants := make([]*model.ParticipantConfig, 0, len(files))
	for position, file := range files {
		if file.Index != position {
			return nil, fmt.Errorf("%w: %s: expected index %d, indices must be contiguous from 0",
				ErrMalformedConfig, filepath.Base(file.Path), position)
		}

		participant, err := readParticipant(file.Path)
		if err != nil {
			return nil, err
		}
		participants = append(participants, participant)
	}

	registry.configDir = configDir
	registry.participants = participants
	registry.logger.Info(fmt.Sprintf("Loaded %d participant configurations from %s", len(participants), configDir))

	return participants, nil
}

func readParticipant(path string) (*model.ParticipantConfig, error) {
	name := filepath.Base(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data := jsonc.ToJSON(raw)
	document, err := jsondoc.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, name, err)
	}

	for _, required := range requiredFields {
		if !document.Has(required.section) {
			return nil, fmt.Errorf("%w: %s: missing section %s", ErrMalformedConfig, name, required.section)
		}
		section, err := document.Child(required.section)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s: %v", ErrMalformedConfig, name, required.section, err)
		}
		for _, key := range required.keys {
			if !section.Has(key) {
				return nil, fmt.Errorf("%w: %s: missing field %s.%s", ErrMalformedConfig, name, required.section, key)
			}
		}
	}

	participant := &model.ParticipantConfig{}
	if err := json.Unmarshal(data, participant); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, name, err)
	}

	if err := validate.Struct(participant); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedConfig, name, formatValidationError(err))
	}

	participant.Path = path
	participant.Document = document

	return participant, nil
}

// Save rewrites the participant file in place. Keys keep their original order
// and unknown keys are carried over.
func (registry *ParticipantRegistry) Save(participant *model.ParticipantConfig) error {
	data, err := encodeParticipant(participant)
	if err != nil {
		return err
	}

	tmpName, err := stageFile(participant.Path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, participant.Path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// SaveAll rewrites the files of all participants. Every record is staged next
// to its file before the first one is replaced, so a record that cannot be
// encoded or staged leaves all files as they were.
func (registry *ParticipantRegistry) SaveAll(participants []*model.ParticipantConfig) error {
	staged := make([]string, 0, len(participants))
	discard := func(tmpNames []string) {
		for _, tmpName := range tmpNames {
			os.Remove(tmpName)
		}
	}

	for _, participant := range participants {
		data, err := encodeParticipant(participant)
		if err != nil {
			discard(staged)
			return fmt.Errorf("%s: %w", participant.Path, err)
		}
		tmpName, err := stageFile(participant.Path, data)
		if err != nil {
			discard(staged)
			return fmt.Errorf("%s: %w", participant.Path, err)
		}
		staged = append(staged, tmpName)
	}

	for i, participant := range participants {
		if err := os.Rename(staged[i], participant.Path); err != nil {
			discard(staged[i:])
			return fmt.Errorf("%s: %w", participant.Path, err)
		}
	}

	return nil
}

func encodeParticipant(participant *model.ParticipantConfig) ([]byte, error) {
	if participant.Path == "" {
		return nil, fmt.Errorf("participant %d has no file path", participant.DeviceArgs.Idx)
	}

	if err := participant.SyncDocument(); err != nil {
		return nil, err
	}

	return participant.Document.MarshalIndent("  ")
}

func (registry *ParticipantRegistry) Get(index int) (*model.ParticipantConfig, error) {
	if index < 0 || index >= len(registry.participants) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownIndex, index)
	}
	return registry.participants[index], nil
}

func (registry *ParticipantRegistry) Len() int {
	return len(registry.participants)
}

func (registry *ParticipantRegistry) ConfigDir() string {
	return registry.configDir
}

func (registry *ParticipantRegistry) Paths() []string {
	paths := make([]string, 0, len(registry.participants))
	for _, participant := range registry.participants {
		paths = append(paths, participant.Path)
	}
	return paths
}

// stageFile writes data to a hidden temporary file beside path and returns
// its name.
func stageFile(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return "", err
	}

	return tmpName, nil
}

func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	for _, e := range validationErrs {
		field := fieldPath(e.Namespace())
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "ip|hostname":
			return fmt.Errorf("%s: %q is neither an IP address nor a hostname", field, e.Value())
		default:
			return fmt.Errorf("%s: failed validation '%s'", field, tag)
		}
	}

	return err
}

// fieldPath turns "ParticipantConfig.NetworkArgs.Port" into "NetworkArgs.Port".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
