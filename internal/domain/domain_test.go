package domain

import (
	"errors"
	"testing"
)

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("")
	if err != nil || st != StatusNew {
		t.Fatalf("empty status: got %q, %v", st, err)
	}
	st, err = ParseStatus(" EU-Remote ")
	if err != nil || st != StatusEURemote {
		t.Fatalf("got %q, %v", st, err)
	}
	if _, err := ParseStatus("maybe"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	if !StatusNew.Pending() || StatusNonEU.Pending() {
		t.Fatal("only new is pending")
	}
}

func TestParseSourceKind(t *testing.T) {
	for _, k := range []string{"greenhouse", "Lever", "ashby", "workable"} {
		if _, err := ParseSourceKind(k); err != nil {
			t.Fatalf("%s: %v", k, err)
		}
	}
	if _, err := ParseSourceKind("smartrecruiters"); !errors.Is(err, ErrUnknownSourceKind) {
		t.Fatalf("expected ErrUnknownSourceKind, got %v", err)
	}
}

func TestIsBoardURL(t *testing.T) {
	cases := map[string]bool{
		"https://jobs.lever.co/acme":                       true,
		"https://jobs.lever.co/acme/":                      true,
		"https://jobs.lever.co/acme/3f1c-42":               false,
		"https://job-boards.greenhouse.io/acme/jobs/12345": false,
		"https://jobs.ashbyhq.com/acme":                    true,
		"https://example.com/careers":                      false,
		"123":                                              false,
	}
	for in, want := range cases {
		if got := IsBoardURL(in); got != want {
			t.Errorf("IsBoardURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCompanyNameFromKey(t *testing.T) {
	if got := CompanyNameFromKey("hello-world_inc"); got != "Hello World Inc" {
		t.Fatalf("got %q", got)
	}
	if got := NormalizeCompanyKey("  Acme   Corp "); got != "acme corp" {
		t.Fatalf("got %q", got)
	}
}
