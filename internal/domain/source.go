package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var ErrUnknownSourceKind = errors.New("unknown source kind")

type SourceKind string

const (
	KindGreenhouse SourceKind = "greenhouse"
	KindLever      SourceKind = "lever"
	KindAshby      SourceKind = "ashby"
	KindWorkable   SourceKind = "workable"
)

var SourceKinds = []SourceKind{KindGreenhouse, KindLever, KindAshby, KindWorkable}

func ParseSourceKind(s string) (SourceKind, error) {
	k := SourceKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SourceKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSourceKind, s)
}

func (k SourceKind) Valid() bool {
	_, err := ParseSourceKind(string(k))
	return err == nil
}

// BoardURL is the public job board of a company on the given vendor.
func (k SourceKind) BoardURL(companyKey string) string {
	key := url.PathEscape(companyKey)
	switch k {
	case KindGreenhouse:
		return "https://job-boards.greenhouse.io/" + key
	case KindLever:
		return "https://jobs.lever.co/" + key
	case KindAshby:
		return "https://jobs.ashbyhq.com/" + key
	case KindWorkable:
		return "https://apply.workable.com/" + key
	}
	return ""
}

// boardHosts are the hosts whose URLs identify a board at depth one and a
// job at depth two or more.
var boardHosts = map[string]bool{
	"boards.greenhouse.io":     true,
	"job-boards.greenhouse.io": true,
	"jobs.lever.co":            true,
	"jobs.eu.lever.co":         true,
	"jobs.ashbyhq.com":         true,
	"apply.workable.com":       true,
}

// IsBoardURL reports whether raw is a vendor board URL with fewer than two
// path segments, i.e. it names a company board rather than a job.
func IsBoardURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	if !boardHosts[strings.ToLower(u.Hostname())] {
		return false
	}
	var segs int
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			segs++
		}
	}
	return segs < 2
}

type Source struct {
	ID            int64      `json:"id"`
	Kind          SourceKind `json:"kind"`
	CompanyKey    string     `json:"companyKey"`
	CanonicalURL  string     `json:"canonicalUrl"`
	LastFetchedAt *time.Time `json:"lastFetchedAt"`
}
