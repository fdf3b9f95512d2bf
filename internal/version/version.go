package version

import (
	"runtime"
	"time"
)

var (
	Version   = "dev"                           // set via -ldflags, ex: v0.3.0
	Commit    = "none"                          // ex: 4f2c9e1
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-10-01T09:12:00Z
	GoVersion = runtime.Version()               // go version
)
