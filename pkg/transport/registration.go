package transport

import "runtime"

// RuntimeInfo describes the Go runtime of the registering process.
type RuntimeInfo struct {
	Runtime        string `json:"runtime"`
	RuntimeVersion string `json:"runtime_version"`
	Platform       string `json:"platform"`
	Arch           string `json:"arch"`
	NumCPU         int    `json:"num_cpu"`
	NumGoroutine   int    `json:"num_goroutine"`
}

// CurrentRuntimeInfo returns the runtime information of this process.
func CurrentRuntimeInfo() RuntimeInfo {
	return RuntimeInfo{
		Runtime:        "go",
		RuntimeVersion: runtime.Version(),
		Platform:       runtime.GOOS,
		Arch:           runtime.GOARCH,
		NumCPU:         runtime.NumCPU(),
		NumGoroutine:   runtime.NumGoroutine(),
	}
}

// Registration is the payload of the register message. Symbol and CSymbol
// tell the console where to place its native breakpoint.
type Registration struct {
	SessionID string `json:"session_id"`
	PID       int    `json:"pid"`
	Hostname  string `json:"hostname"`
	Symbol    string `json:"symbol"`
	CSymbol   string `json:"c_symbol"`
	RuntimeInfo
}
