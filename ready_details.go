package manager

import "time"

type DatafileSource int

const (
	SourceUninitialized DatafileSource = iota
	SourceInline
	SourceCache
	SourceNetwork
)

func (s DatafileSource) String() string {
	switch s {
	case SourceInline:
		return "Inline"
	case SourceCache:
		return "Cache"
	case SourceNetwork:
		return "Network"
	default:
		return "Uninitialized"
	}
}

// ReadyDetails describes how the manager got its first usable datafile
type ReadyDetails struct {
	Source   DatafileSource
	Revision string
	// Time from construction until the datafile was active
	Duration time.Duration
}
