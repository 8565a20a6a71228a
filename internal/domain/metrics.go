package domain

import "time"

// BuildStatus labels the outcome of a sub-build.
type BuildStatus string

const (
	BuildStatusSuccess BuildStatus = "success"
	BuildStatusError   BuildStatus = "error"
	BuildStatusStale   BuildStatus = "stale"
)

// BuildSource labels where served HTML came from.
type BuildSource string

const (
	BuildSourceCache     BuildSource = "cache"
	BuildSourceShared    BuildSource = "shared"
	BuildSourceBuild     BuildSource = "build"
	BuildSourceTransform BuildSource = "transform"
)

type Metrics interface {
	ObserveCollect(duration time.Duration, counts map[Kind]int)
	ObserveBuild(framework Framework, duration time.Duration, status BuildStatus)
	ObserveHTMLServed(source BuildSource)
	ObserveToolRun(tool string, duration time.Duration, err error)
	SetPreviewSessions(count int)
}
