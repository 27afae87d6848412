// Package lifecycle defines the article status state machine.
package lifecycle

type Status string

const (
	StatusQueued           Status = "queued"
	StatusProcessing       Status = "processing"
	StatusDraft            Status = "draft"
	StatusGenerationFailed Status = "generation_failed"
	StatusPendingPublish   Status = "pending_publish"
	StatusPublished        Status = "published"
	StatusArchived         Status = "archived"
)

var transitions = map[Status][]Status{
	StatusQueued:           {StatusProcessing, StatusArchived},
	StatusProcessing:       {StatusDraft, StatusGenerationFailed},
	StatusDraft:            {StatusPendingPublish, StatusPublished, StatusArchived},
	StatusPendingPublish:   {StatusPublished, StatusDraft, StatusArchived},
	StatusPublished:        {StatusDraft, StatusArchived},
	StatusGenerationFailed: {StatusQueued, StatusArchived},
	StatusArchived:         {StatusDraft},
}

// Valid reports whether s is a known article status.
func Valid(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from one status to another is allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UserAssignable reports whether the status endpoint may set the target status
// directly. Generation states belong to the queue: queued is only reachable
// through requeue, processing through the claim, and the generation outcomes
// through the worker.
func UserAssignable(to Status) bool {
	switch to {
	case StatusQueued, StatusProcessing, StatusGenerationFailed:
		return false
	default:
		return Valid(to)
	}
}

// QueueOwned reports whether an article in status s belongs to the generation
// pipeline. The status endpoint may not move an article out of these states;
// only the worker settles them.
func QueueOwned(s Status) bool {
	return s == StatusQueued || s == StatusProcessing
}

// Terminal reports whether the generation subsystem is done with the article.
func Terminal(s Status) bool {
	return s != StatusQueued && s != StatusProcessing
}
