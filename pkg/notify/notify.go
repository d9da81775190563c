// Package notify carries status reports from the upload pipeline to
// observers. Delivery never blocks the pipeline.
package notify

import (
	"fmt"
	"time"
)

// Kind is the type of a status report.
type Kind string

const (
	KindWatching  Kind = "watching"
	KindUploading Kind = "uploading"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Status is a single observable transition. Detail holds the watching
// description or the failure reason.
type Status struct {
	Kind   Kind      `json:"kind"`
	Name   string    `json:"name,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Link   string    `json:"link,omitempty"`
	Time   time.Time `json:"time"`
}

// String renders the status for humans.
func (s Status) String() string {
	switch s.Kind {
	case KindWatching:
		return "Watching: " + s.Detail
	case KindUploading:
		return "Uploading " + s.Name
	case KindCompleted:
		return "Uploaded " + s.Name
	case KindFailed:
		return fmt.Sprintf("Upload failed for %s: %s", s.Name, s.Detail)
	default:
		return string(s.Kind)
	}
}

// Watching reports the state of the watch session.
func Watching(description string) Status {
	return Status{Kind: KindWatching, Detail: description, Time: time.Now()}
}

// Uploading reports that an upload of name started.
func Uploading(name string) Status {
	return Status{Kind: KindUploading, Name: name, Time: time.Now()}
}

// Completed reports that name was uploaded.
func Completed(name, link string) Status {
	return Status{Kind: KindCompleted, Name: name, Link: link, Time: time.Now()}
}

// Failed reports that uploading name failed.
func Failed(name, reason string) Status {
	return Status{Kind: KindFailed, Name: name, Detail: reason, Time: time.Now()}
}

// Notifier receives status reports. Implementations must not block.
type Notifier interface {
	Notify(s Status)
}

// Func adapts a function to Notifier.
type Func func(s Status)

// Notify calls f(s).
func (f Func) Notify(s Status) {
	f(s)
}

// Discard drops every status.
var Discard Notifier = Func(func(Status) {})
