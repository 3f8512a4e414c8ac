package model

import "time"

// Scenario is one orchestration run. It owns its participant records for the
// lifetime of the run and is only mutated while the run is being assembled.
type Scenario struct {
	Name       string
	Federation string
	ConfigDir  string
	LogDir     string
	StartTime  time.Time

	Participants []*ParticipantConfig
	StartIndex   int
}

func (scenario *Scenario) ParticipantPaths() []string {
	paths := make([]string, 0, len(scenario.Participants))
	for _, participant := range scenario.Participants {
		paths = append(paths, participant.Path)
	}
	return paths
}
