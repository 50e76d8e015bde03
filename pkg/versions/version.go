// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package versions holds build information injected with -ldflags.
package versions

import (
	"fmt"
	"runtime"
	"time"
)

const unknownStr = "unknown"

// Set at build time, e.g.
// -ldflags "-X github.com/stacklok/mxcp-auth/pkg/versions.Version=v1.0.0".
var (
	Version   = "dev"
	Commit    = unknownStr
	BuildDate = unknownStr
)

// VersionInfo describes the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the build information. Development builds report
// "build-" followed by the short commit.
func GetVersionInfo() VersionInfo {
	ver := Version
	if ver == "dev" {
		ver = "build-" + Commit[:min(8, len(Commit))]
	}

	date := BuildDate
	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		date = t.UTC().Format("2006-01-02 15:04:05 UTC")
	}

	return VersionInfo{
		Version:   ver,
		Commit:    Commit,
		BuildDate: date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
