package main

import (
	"testing"

	"github.com/allhic-core/allhic"
	"github.com/urfave/cli"
)

func TestParseResolutions(t *testing.T) {
	got, err := parseResolutions("500000,100000,50000")
	if err != nil {
		t.Fatalf("parseResolutions: %v", err)
	}
	want := []int{500000, 100000, 50000}
	if len(got) != len(want) {
		t.Fatalf("parseResolutions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("parseResolutions[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestParseResolutionsRejectsNonNumeric(t *testing.T) {
	if _, err := parseResolutions("100000,abc"); err == nil {
		t.Errorf("parseResolutions(\"100000,abc\") succeeded, want error")
	}
}

func TestParseResolutionsRejectsEmpty(t *testing.T) {
	if _, err := parseResolutions(""); err == nil {
		t.Errorf("parseResolutions(\"\") succeeded, want error")
	}
}

func TestExitForErrorMapsPipelineKindToExitCode(t *testing.T) {
	cases := []struct {
		kind allhic.Kind
		want int
	}{
		{allhic.NoBands, 14},
		{allhic.NoMem, 15},
		{allhic.InputInvalid, 1},
	}
	for _, c := range cases {
		pe := &allhic.PipelineError{Kind: c.kind, Context: "test"}
		err := exitForError(pe)
		exitErr, ok := err.(*cli.ExitError)
		if !ok {
			t.Fatalf("exitForError(%v) = %T, want *cli.ExitError", c.kind, err)
		}
		if exitErr.ExitCode() != c.want {
			t.Errorf("exitForError(%v) exit code = %d, want %d", c.kind, exitErr.ExitCode(), c.want)
		}
	}
}

func TestExitForErrorDefaultsToOneForPlainErrors(t *testing.T) {
	exitErr, ok := exitForError(errPlain("boom")).(*cli.ExitError)
	if !ok {
		t.Fatal("exitForError did not return a *cli.ExitError")
	}
	if exitErr.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", exitErr.ExitCode())
	}
}

type errPlain string

func (e errPlain) Error() string { return string(e) }
