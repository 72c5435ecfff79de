// Package publish holds the publish-status lifecycle of crags, sectors and
// routes, and the opt-in cascade of a status change to inherited children.
package publish

import (
	"fmt"
	"strings"
)

type Status string

const (
	Archived  Status = "archived"
	Draft     Status = "draft"
	Proposal  Status = "proposal"
	Published Status = "published"
)

// ordered from least to most public
var ordered = []Status{Archived, Draft, Proposal, Published}

func Parse(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if status.Rank() < 0 {
		return "", fmt.Errorf("unknown publish status %q", value)
	}
	return status, nil
}

// Rank is the position of s in the visibility order, or -1 when s is unknown.
func (s Status) Rank() int {
	for i, candidate := range ordered {
		if candidate == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool {
	return s.Rank() >= 0
}

// Unpublished reports whether s counts as a pending contribution of its owner.
func (s Status) Unpublished() bool {
	return s == Draft || s == Proposal
}

// AtLeast returns every status at or above min, in ascending order.
func AtLeast(min Status) []Status {
	rank := min.Rank()
	if rank < 0 {
		rank = len(ordered) - 1
	}
	out := make([]Status, len(ordered)-rank)
	copy(out, ordered[rank:])
	return out
}

// MinimumFor is the least public status a caller with role may see on
// entities it does not own. An empty role is an anonymous caller.
func MinimumFor(role string) Status {
	switch role {
	case "admin":
		return Archived
	case "editor":
		return Proposal
	default:
		return Published
	}
}

// Strings renders statuses for use as query arguments.
func Strings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}
