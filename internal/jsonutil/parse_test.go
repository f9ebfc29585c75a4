package jsonutil

import "testing"

type extraction struct {
	Object        string `json:"object"`
	LowpolyPrompt string `json:"lowpolyPrompt"`
}

func TestParseJSONPlain(t *testing.T) {
	raw := `{"object": "a sled", "lowpolyPrompt": "lowpoly paper toy"}`
	got, err := ParseJSON[extraction](raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Object != "a sled" || got.LowpolyPrompt != "lowpoly paper toy" {
		t.Errorf("got %+v", got)
	}
}

func TestParseJSONFenced(t *testing.T) {
	raw := "```json\n{\"object\": \"a sled\", \"lowpolyPrompt\": \"lowpoly paper toy\"}\n```"
	got, err := ParseJSON[extraction](raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Object != "a sled" {
		t.Errorf("got %+v", got)
	}
}

func TestParseJSONEmbeddedInProse(t *testing.T) {
	raw := "Here is the extraction you asked for:\n{\"object\": \"a sled\", \"lowpolyPrompt\": \"lowpoly\"}\nLet me know if you need anything else."
	got, err := ParseJSON[extraction](raw)
	if err != nil {
		t.Fatal(err)
	}
	if got.Object != "a sled" {
		t.Errorf("got %+v", got)
	}
}

func TestParseJSONNoContent(t *testing.T) {
	if _, err := ParseJSON[extraction]("the model refused to answer"); err == nil {
		t.Fatal("expected error for response without JSON")
	}
}

func TestStripMarkdownFencesPassthrough(t *testing.T) {
	raw := `{"object": "x"}`
	if got := StripMarkdownFences(raw); got != raw {
		t.Errorf("got %q", got)
	}
}
