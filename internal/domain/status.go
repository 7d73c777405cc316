package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStatus = errors.New("unknown status")

// Status is the processing state of a posting. StatusNew is the only
// pending marker; everything else is written by the classifier or by
// the stale janitor.
type Status string

const (
	StatusNew         Status = "new"
	StatusEnhanced    Status = "enhanced"
	StatusRoleMatch   Status = "role-match"
	StatusRoleNoMatch Status = "role-nomatch"
	StatusEURemote    Status = "eu-remote"
	StatusNonEU       Status = "non-eu"
	StatusError       Status = "error"
	StatusStale       Status = "stale"
)

var statuses = []Status{
	StatusNew, StatusEnhanced, StatusRoleMatch, StatusRoleNoMatch,
	StatusEURemote, StatusNonEU, StatusError, StatusStale,
}

// ParseStatus maps "" to StatusNew and rejects anything outside the enum.
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StatusNew, nil
	}
	for _, st := range statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil && s != ""
}

func (s Status) Pending() bool { return s == StatusNew }

func (s Status) String() string { return string(s) }
