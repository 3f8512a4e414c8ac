package common

import "time"

// Participant files
const PARTICIPANT_FILE_PREFIX = "participant_"
const PARTICIPANT_FILE_EXT = ".json"
const PARTICIPANT_OUTPUT_EXT = ".out"
const TOPOLOGY_IMAGE_NAME = "topology.png"
const CONTROLLER_LOG_NAME = "controller.log"

// Scenario naming
const DEFAULT_SCENARIO_PREFIX = "dfl"
const SCENARIO_NAME_TIME_LAYOUT = "02_01_2006_15_04_05"
const START_TIME_LAYOUT = "02/01/2006 15:04:05"

// Federation kinds
const FEDERATION_DFL = "DFL"
const FEDERATION_SDFL = "SDFL"
const FEDERATION_CFL = "CFL"

// Participant roles (visualization)
const ROLE_START = "start"
const ROLE_SERVER = "server"
const ROLE_PARTICIPANT = "participant"

// Staged start
const DEFAULT_GRACE_INTERVAL = 7 * time.Second
const DEFAULT_READINESS_TIMEOUT = 60 * time.Second
const DEFAULT_READINESS_SCHEDULE = "@every 1s"

// Events
const SCENARIO_STATE_CHANGED_EVENT_TYPE = "ScenarioStateChanged"
const PARTICIPANT_SPAWNED_EVENT_TYPE = "ParticipantSpawned"
const PEER_READY_EVENT_TYPE = "PeerReady"

// Launchers
const LAUNCHER_AUTO = "auto"
const LAUNCHER_LOCAL = "local"
const LAUNCHER_TERMINAL = "terminal"
const LAUNCHER_CONSOLE = "console"
const LAUNCHER_DUMMY = "dummy"

// Start modes
const START_MODE_DELAY = "delay"
const START_MODE_HANDSHAKE = "handshake"
