/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package kvstore

import (
	"fmt"
	"runtime"
)

// Build metadata for the kvstore binary. Release builds stamp it with
//
//	go build -ldflags "\
//	  -X github.com/suparena/kvstore.Version=$(git describe --tags) \
//	  -X github.com/suparena/kvstore.GitCommit=$(git rev-parse --short HEAD) \
//	  -X github.com/suparena/kvstore.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	  ./cmd/kvstore
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// VersionInfo is printed by `kvstore version` and embedded in --json output.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetVersionInfo reports the stamped build metadata. The Go version and
// platform come from the running binary.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("kvstore %s (commit %s, built %s, %s %s)", v.Version, v.GitCommit, v.BuildDate, v.GoVersion, v.Platform)
}
