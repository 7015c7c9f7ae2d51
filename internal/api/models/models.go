package models

import "time"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"3 of 4 actions running" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"1.0.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go runtime version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Operating system and architecture"`
}

type VersionResponse struct {
	Body VersionData
}

// Action models
type ActionData struct {
	Name          string     `json:"name" example:"snips-weather" doc:"Action name from its manifest"`
	Version       string     `json:"version,omitempty" example:"1.2.0" doc:"Action version from its manifest"`
	Root          string     `json:"root" example:"/var/lib/snips/skills/snips-weather" doc:"Action directory"`
	Target        string     `json:"target" example:"/var/lib/snips/skills/snips-weather/index.js" doc:"Resolved entry point"`
	State         string     `json:"state" enum:"pending,running,crashed,disabled,stopped" doc:"Supervision state"`
	InstanceID    string     `json:"instance_id,omitempty" doc:"Identifier of the current launch"`
	Generation    int        `json:"generation" example:"2" doc:"Launch sequence number"`
	RestartCount  int        `json:"restart_count" example:"1" doc:"Relaunches after crashes"`
	WindowCrashes int        `json:"window_crashes" example:"1" doc:"Crashes in the open crash window"`
	TotalCrashes  int        `json:"total_crashes" example:"1" doc:"Crashes since startup"`
	LaunchedAt    *time.Time `json:"launched_at,omitempty" doc:"When the current instance was launched"`
	LastCrashAt   *time.Time `json:"last_crash_at,omitempty" doc:"When the action last crashed"`
	LastError     string     `json:"last_error,omitempty" doc:"Most recent crash or launch error"`
}

type ActionListData struct {
	Actions []ActionData `json:"actions" doc:"Supervised actions in catalog order"`
	Count   int          `json:"count" example:"4" doc:"Number of actions"`
}

type ActionListResponse struct {
	Body ActionListData
}

type ActionRequest struct {
	Name string `path:"name" minLength:"1" example:"snips-weather" doc:"Action name"`
}

type ActionResponse struct {
	Body ActionData
}

// Log models
type LogEntryData struct {
	Timestamp  time.Time      `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogsRequest struct {
	Lines int `query:"lines" minimum:"1" maximum:"1000" default:"100" doc:"Number of most recent entries"`
}

type LogsData struct {
	Entries []LogEntryData `json:"entries" doc:"Log entries, oldest first"`
	Count   int            `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogsResponse struct {
	Body LogsData
}
