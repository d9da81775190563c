package watcher

import "time"

// Kind is the type of a normalized filesystem event.
type Kind int

const (
	// DirectoryCreated is emitted when a directory appears under the root
	// and has been added to the watch.
	DirectoryCreated Kind = iota + 1
	// FileFinalized is emitted when an eligible file has been created,
	// moved in or written and then stayed unmodified for the quiet period.
	FileFinalized
)

func (k Kind) String() string {
	switch k {
	case DirectoryCreated:
		return "directory_created"
	case FileFinalized:
		return "file_finalized"
	default:
		return "unknown"
	}
}

// Event is a normalized filesystem event. Path is absolute and clean.
type Event struct {
	Kind Kind
	Path string
	Time time.Time
}
