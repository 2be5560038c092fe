package rulebook

import (
	"strings"
	"testing"
)

const sampleRulebook = `
name: triage
description: Fast first-pass assessment.
phases:
  - name: Recon
    goal: Understand the shape of the target.
    steps:
      - List the entry points.
      - Map external dependencies.
  - name: Verdict
    steps:
      - Summarize risk in three bullets.
rules:
  - Never modify the target.
  - Cite file and line for every claim.
`

func TestParseAndRender(t *testing.T) {
	rb, err := Parse([]byte(sampleRulebook))
	if err != nil {
		t.Fatal(err)
	}
	if rb.Name != "triage" || len(rb.Phases) != 2 || len(rb.Rules) != 2 {
		t.Fatalf("rulebook = %+v", rb)
	}

	out := rb.Render()
	for _, want := range []string{
		"# Working method: triage",
		"## Phase 1: Recon",
		"Goal: Understand the shape of the target.",
		"1. List the entry points.",
		"## Phase 2: Verdict",
		"## Rules",
		"- Never modify the target.",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("render missing %q:\n%s", want, out)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	rb, err := Parse([]byte(sampleRulebook))
	if err != nil {
		t.Fatal(err)
	}
	first := rb.Render()
	for i := 0; i < 10; i++ {
		if rb.Render() != first {
			t.Fatal("render is not deterministic")
		}
	}
}

func TestParseRequiresName(t *testing.T) {
	if _, err := Parse([]byte("description: nameless")); err == nil {
		t.Fatal("expected missing name to fail")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("\t{not yaml")); err == nil {
		t.Fatal("expected parse error")
	}
}
