package sentiment

import "testing"

func TestScoreEmpty(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t"} {
		got := Score(text)
		if got.Score != 0 {
			t.Errorf("Score(%q) = %v, want 0", text, got.Score)
		}
		if got.Label != LabelNeutral {
			t.Errorf("Score(%q) label = %q, want neutral", text, got.Label)
		}
	}
}

func TestScoreRatio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"all positive", "thanks, that was great", 1},
		{"all negative", "terrible, awful experience", -1},
		{"balanced", "great product but terrible support", 0},
		{"no keywords", "the order shipped on tuesday", 0},
		{"mostly negative", "good idea but broken, useless, awful", -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Score(tt.text)
			if got.Score != tt.want {
				t.Errorf("Score(%q) = %v, want %v", tt.text, got.Score, tt.want)
			}
		})
	}
}

func TestScoreShoutingPenalty(t *testing.T) {
	t.Parallel()

	calm := Score("this is broken")
	loud := Score("this is BROKEN!!!")
	if loud.Score >= calm.Score {
		t.Errorf("shouting should lower score: calm=%v loud=%v", calm.Score, loud.Score)
	}
	found := false
	for _, ind := range loud.Indicators {
		if ind == "shouting" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected shouting indicator, got %v", loud.Indicators)
	}
}

func TestScoreBounds(t *testing.T) {
	t.Parallel()

	texts := []string{
		"AWFUL TERRIBLE HORRIBLE WORST!!! ???",
		"thanks thanks thanks great great perfect",
		"REFUND NOW!!!!!",
	}
	for _, text := range texts {
		got := Score(text)
		if got.Score < -1 || got.Score > 1 {
			t.Errorf("Score(%q) = %v, out of [-1, 1]", text, got.Score)
		}
	}
}

func TestScoreLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"thanks, perfect", LabelPositive},
		{"the invoice arrived", LabelNeutral},
		{"good but the app failed twice, annoying issue", LabelNegative},
		{"AWFUL!!! worst support ever, furious", LabelAngry},
	}
	for _, tt := range tests {
		got := Score(tt.text)
		if got.Label != tt.want {
			t.Errorf("Score(%q) label = %q (score %v), want %q", tt.text, got.Label, got.Score, tt.want)
		}
	}
}

func TestScoreCaseInsensitiveKeywords(t *testing.T) {
	t.Parallel()

	if got := Score("Thanks!"); got.Score <= 0 {
		t.Errorf("capitalised keyword should still count: %v", got.Score)
	}
}
