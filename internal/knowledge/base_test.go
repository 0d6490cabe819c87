package knowledge

import (
	"reflect"
	"testing"
)

const sampleCorpus = `# How do I reset my password?
Go to the login page and click "Forgot password". A reset link is sent
to your registered email address.

# How do I add team members?
Open Settings, choose Team, and click Invite. Enter the email address of
each team member you want to add. Invited members get an email with a
join link.

# What payment methods are accepted?
We accept credit cards and bank transfer on annual plans.
`

func TestParse(t *testing.T) {
	t.Parallel()

	b := Parse(sampleCorpus)
	if b.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", b.Len())
	}

	matches := b.Search("reset password", 0)
	if len(matches) == 0 {
		t.Fatal("expected a match for reset password")
	}
	if matches[0].Entry.ID != 1 {
		t.Errorf("top match id = %d, want 1", matches[0].Entry.ID)
	}
	if matches[0].Entry.Title != "How do I reset my password?" {
		t.Errorf("unexpected title %q", matches[0].Entry.Title)
	}
}

func TestParseSkipsEmptyEntries(t *testing.T) {
	t.Parallel()

	b := Parse("# Lone heading\n\n# Real entry\nSome content here.\n")
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
}

func TestSearchTeamMembers(t *testing.T) {
	t.Parallel()

	b := Parse(sampleCorpus)
	matches := b.Search("How do I add team members?", 3)
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}
	if matches[0].Entry.Title != "How do I add team members?" {
		t.Errorf("top match = %q, want team members entry", matches[0].Entry.Title)
	}
	if matches[0].Score <= 0 || matches[0].Score > 1 {
		t.Errorf("score %v out of (0, 1]", matches[0].Score)
	}
}

func TestSearchNoOverlap(t *testing.T) {
	t.Parallel()

	b := Parse(sampleCorpus)
	if matches := b.Search("quantum flux capacitor", 3); matches != nil {
		t.Errorf("expected nil matches, got %v", matches)
	}
	if matches := b.Search("", 3); matches != nil {
		t.Errorf("empty query should match nothing, got %v", matches)
	}
}

func TestSearchDeterministic(t *testing.T) {
	t.Parallel()

	b := Parse(sampleCorpus)
	first := b.Search("how do I add a team member email", 3)
	for i := 0; i < 5; i++ {
		again := b.Search("how do I add a team member email", 3)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("search not deterministic: %v vs %v", first, again)
		}
	}
}

func TestSearchTitleOutweighsContent(t *testing.T) {
	t.Parallel()

	b := Parse("# Billing overview\nHow invoices work.\n\n# Account help\nBilling questions answered here.\n")
	matches := b.Search("billing", 3)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Entry.Title != "Billing overview" {
		t.Errorf("title hit should rank first, got %q", matches[0].Entry.Title)
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	t.Parallel()

	b := Parse(sampleCorpus)
	matches := b.Search("reset password invite email", 1)
	if len(matches) > 1 {
		t.Errorf("got %d matches, want at most 1", len(matches))
	}
}
