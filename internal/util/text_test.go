package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeTextStripsControls(t *testing.T) {
	in := "attention\x00 is all\x01 you need\n"
	require.Equal(t, "attention is all you need", SanitizeText(in))
}

func TestDisplaySnippetTruncates(t *testing.T) {
	s := DisplaySnippet("alpha beta gamma delta", 10)
	require.Equal(t, "alpha beta...", s)
}

func TestNormalizeQuery(t *testing.T) {
	require.Equal(t, "what is attention", NormalizeQuery("  What  IS\tAttention "))
}

func TestTokenizeTrimsPlurals(t *testing.T) {
	toks := Tokenize("Transformers use attention; transformer models pass.")
	require.Contains(t, toks, "transformer")
	require.NotContains(t, toks, "transformers")
	// Double-s endings are left alone.
	require.Contains(t, toks, "pass")
	require.Contains(t, toks, "model")
}
