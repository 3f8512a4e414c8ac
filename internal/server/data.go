package server

import (
	"encoding/json"
	"io"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/config"
)

func toJSON(i interface{}, w io.Writer) error {
	e := json.NewEncoder(w)
	return e.Encode(i)
}

func fromJSON(i interface{}, r io.Reader) error {
	d := json.NewDecoder(r)
	return d.Decode(i)
}

// StartScenarioRequest overrides the server configuration for one run. Absent
// fields keep the configured value.
type StartScenarioRequest struct {
	Name         string  `json:"name"`
	Federation   string  `json:"federation"`
	Simulation   *bool   `json:"simulation"`
	Topology     string  `json:"topology"`
	NeighborNum  *int    `json:"neighborNum"`
	Symmetric    *bool   `json:"symmetric"`
	Seed         *int64  `json:"seed"`
	ServerIndex  *int    `json:"serverIndex"`
	Matrix       [][]int `json:"matrix"`
	Participants *int    `json:"participants"`
	StartIndex   *int    `json:"startIndex"`
	StartMode    string  `json:"startMode"`
	Templates    string  `json:"templates"`
	KillPorts    *bool   `json:"killPorts"`
}

func (request *StartScenarioRequest) apply(cfg *config.Config) {
	if request.Name != "" {
		cfg.Scenario.Name = request.Name
	}
	if request.Federation != "" {
		cfg.Scenario.Federation = request.Federation
	}
	if request.Simulation != nil {
		cfg.Scenario.Simulation = *request.Simulation
	}
	if request.Topology != "" {
		cfg.Topology.Kind = request.Topology
	}
	if request.NeighborNum != nil {
		cfg.Topology.NeighborNum = *request.NeighborNum
	}
	if request.Symmetric != nil {
		cfg.Topology.Symmetric = *request.Symmetric
	}
	if request.Seed != nil {
		cfg.Topology.Seed = *request.Seed
	}
	if request.ServerIndex != nil {
		cfg.Topology.ServerIndex = *request.ServerIndex
	}
	if request.Matrix != nil {
		cfg.Topology.Matrix = request.Matrix
	}
	if request.Participants != nil {
		cfg.Participants.Count = *request.Participants
	}
	if request.StartIndex != nil {
		cfg.Participants.StartIndex = *request.StartIndex
	}
	if request.StartMode != "" {
		cfg.Start.Mode = request.StartMode
	}
	if request.Templates != "" {
		cfg.Paths.Templates = request.Templates
	}
	if request.KillPorts != nil {
		cfg.Start.KillPorts = *request.KillPorts
	}
}

type StartScenarioResponse struct {
	RunId    string `json:"runId"`
	Scenario string `json:"scenario"`
	State    string `json:"state"`
}

type ScenarioStatus struct {
	RunId        string `json:"runId"`
	Scenario     string `json:"scenario"`
	State        string `json:"state"`
	Participants int    `json:"participants"`
	StartIndex   int    `json:"startIndex"`
}

type StopScenarioResponse struct {
	RunId  string `json:"runId"`
	Killed int    `json:"killed"`
}

type RemoveConfigsResponse struct {
	Removed int `json:"removed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
