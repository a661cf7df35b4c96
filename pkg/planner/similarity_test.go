package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		expected string
	}{
		{
			name:     "lowercases and strips digits",
			title:    "Check Stock Price 2024",
			expected: "check stock price",
		},
		{
			name:     "drops parenthesised qualifiers",
			title:    "Weekly report (every Monday)",
			expected: "report",
		},
		{
			name:     "drops stopwords",
			title:    "a daily task to check the weather",
			expected: "check weather",
		},
		{
			name:     "collapses punctuation runs",
			title:    "sync -- calendar!!",
			expected: "sync calendar",
		},
		{
			name:     "keeps han characters",
			title:    "查询天气 daily",
			expected: "查询天气",
		},
		{
			name:     "empty after stripping",
			title:    "123 (456)",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTitle(tt.title))
		})
	}
}

func TestSimilarTitles(t *testing.T) {
	tests := []struct {
		name      string
		a, b      string
		threshold float64
		expected  bool
	}{
		{
			name: "identical after normalization",
			a:    "Check the weather daily", b: "check weather",
			threshold: 0.5, expected: true,
		},
		{
			name: "token overlap above threshold",
			a:    "monitor bitcoin price", b: "monitor bitcoin price alerts",
			threshold: 0.5, expected: true,
		},
		{
			name: "substring containment",
			a:    "stock price", b: "check stock price movements",
			threshold: 0.9, expected: true,
		},
		{
			name: "unrelated tasks",
			a:    "water the plants", b: "send quarterly invoice",
			threshold: 0.5, expected: false,
		},
		{
			name: "short substring does not match",
			a:    "ab", b: "absolutely different",
			threshold: 0.9, expected: false,
		},
		{
			name: "empty title never matches",
			a:    "", b: "check weather",
			threshold: 0.1, expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SimilarTitles(tt.a, tt.b, tt.threshold))
		})
	}
}

func TestTokenJaccard(t *testing.T) {
	assert.Equal(t, 1.0, TokenJaccard("check weather", "weather check"))
	assert.Equal(t, 0.0, TokenJaccard("", "weather"))
	assert.InDelta(t, 1.0/3.0, TokenJaccard("a b", "b c"), 1e-9)
}

func TestBigramJaccard(t *testing.T) {
	assert.Equal(t, 1.0, BigramJaccard("abc", "abc"))
	assert.Equal(t, 0.0, BigramJaccard("ab", "cd"))
	assert.Equal(t, 0.0, BigramJaccard("", "ab"))
}

func TestFindSimilarTitle(t *testing.T) {
	existing := map[string]string{
		"job_00000002": "send quarterly invoice",
		"job_00000001": "check the weather daily",
	}

	id, ok := FindSimilarTitle("weather check", existing, 0.5)
	assert.True(t, ok)
	assert.Equal(t, "job_00000001", id)

	_, ok = FindSimilarTitle("water the plants", existing, 0.5)
	assert.False(t, ok)
}
