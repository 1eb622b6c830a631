package cards

import (
	"errors"
	"strings"
	"testing"
)

func validCard(title string) Card {
	return Card{
		Title:           title,
		Audience:        AudienceNewHire,
		Pain:            "Cannot find the auth flow",
		ContentMarkdown: "## Steps\n1. Open the login handler.",
		Citations:       []string{"ev_abc123"},
	}
}

func TestTitleOpensInterrogative(t *testing.T) {
	t.Parallel()

	for _, title := range []string{
		"HOW to Reset a Password",
		"what changed in the auth flow",
		"Who owns the billing service",
		"WHERE is the deploy config",
		"Why  was caching added",
	} {
		if !titleOpensInterrogative(title) {
			t.Fatalf("%q should be accepted", title)
		}
	}
	for _, title := range []string{
		"Resetting a Password",
		"Howto deploy",
		"whoami changes",
		"",
	} {
		if titleOpensInterrogative(title) {
			t.Fatalf("%q should be rejected", title)
		}
	}
}

func TestValidateCard(t *testing.T) {
	t.Parallel()

	if err := ValidateCard(validCard("How to Reset a Password")); err != nil {
		t.Fatalf("valid card rejected: %v", err)
	}

	bad := validCard("How to Reset a Password")
	bad.Title = " "
	if err := ValidateCard(bad); err == nil {
		t.Fatalf("empty title accepted")
	}

	bad = validCard("Resetting Passwords")
	if err := ValidateCard(bad); err == nil || !strings.Contains(err.Error(), "Who/What/Where/Why/How") {
		t.Fatalf("non-interrogative title: err=%v", err)
	}

	bad = validCard("How to Reset a Password")
	bad.Audience = "Everyone"
	if err := ValidateCard(bad); err == nil || !strings.Contains(err.Error(), "audience") {
		t.Fatalf("unknown audience: err=%v", err)
	}

	bad = validCard("How to Reset a Password")
	bad.ContentMarkdown = ""
	if err := ValidateCard(bad); err == nil {
		t.Fatalf("missing content accepted")
	}
}

func TestParseChunkResult(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"cards": [{
			"title": "What Changed in the Login Flow",
			"audience": "Tech Reader - YOUR TEAM",
			"pain": "Reviewers miss the new session handling",
			"context": {"user_category": "Tech Reader - YOUR TEAM", "specific_pain": "p", "when_where": "w", "current_state": "c", "desired_outcome": "d"},
			"content_markdown": "The handler now refreshes sessions. [ev_a1b2]",
			"citations": ["ev_a1b2"]
		}],
		"exhaustiveness_notes": "covered all auth changes",
		"complete": true
	}`)

	result, err := ParseChunkResult(raw)
	if err != nil {
		t.Fatalf("ParseChunkResult: %v", err)
	}
	if len(result.Cards) != 1 || !result.Complete {
		t.Fatalf("result=%+v", result)
	}
	if result.Cards[0].Context.SpecificPain != "p" {
		t.Fatalf("context=%+v", result.Cards[0].Context)
	}
}

func TestParseChunkResultInvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := ParseChunkResult([]byte("not json"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v, want *ValidationError", err)
	}
}

func TestValidateChunkResultNoCards(t *testing.T) {
	t.Parallel()

	err := ValidateChunkResult(ChunkResult{Complete: true})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err=%v, want *ValidationError", err)
	}
	if !strings.Contains(verr.Reason, "no cards") {
		t.Fatalf("reason=%q", verr.Reason)
	}
}

func TestValidateChunkResultNamesBadCard(t *testing.T) {
	t.Parallel()

	err := ValidateChunkResult(ChunkResult{Cards: []Card{
		validCard("How to Reset a Password"),
		validCard("Untitled"),
	}})
	if err == nil || !strings.Contains(err.Error(), "card 1") {
		t.Fatalf("err=%v", err)
	}
}
