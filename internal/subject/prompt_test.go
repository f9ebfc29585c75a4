package subject

import (
	"strings"
	"testing"
)

func TestPromptComposition(t *testing.T) {
	d := &Description{
		Object:        "a red bicycle",
		LowpolyPrompt: "lowpoly paper toy, fewer than 100 quadrilaterals",
	}
	got := d.Prompt()
	want := "a red bicycle. lowpoly paper toy, fewer than 100 quadrilaterals"
	if got != want {
		t.Errorf("Prompt() = %q, want %q", got, want)
	}
}

func TestBuildPromptIncludesStory(t *testing.T) {
	story := "Grandpa taught me to ride on the gravel road behind the barn."
	p := BuildPrompt(story, true)
	if !strings.Contains(p, story) {
		t.Error("prompt does not carry the story text")
	}
	if !strings.Contains(p, "BOTH") {
		t.Error("image variant should reference both inputs")
	}
	if !strings.Contains(p, "fewer than 100 quadrilaterals") {
		t.Error("prompt missing polycount constraint")
	}
}

func TestBuildPromptTextOnly(t *testing.T) {
	p := BuildPrompt("just words", false)
	if strings.Contains(p, "BOTH") {
		t.Error("text-only variant should not reference an image")
	}
}
