package intervene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateOnlyMediumAndHighQualify(t *testing.T) {
	g := NewGate(30 * time.Second)

	require.False(t, g.ShouldIntervene("low"))
	require.False(t, g.ShouldIntervene(""))
	require.True(t, g.ShouldIntervene("medium"))
	require.True(t, g.ShouldIntervene("high"))
}

func TestGateCooldownSuppressesSecondWarning(t *testing.T) {
	now := time.Now()
	g := NewGate(30 * time.Second)
	g.now = func() time.Time { return now }

	require.True(t, g.ShouldIntervene("high"))
	g.MarkIntervened()

	// A second high-risk assessment two seconds later stays silent.
	now = now.Add(2 * time.Second)
	require.False(t, g.ShouldIntervene("high"))

	// After the cooldown expires the gate opens again.
	now = now.Add(29 * time.Second)
	require.True(t, g.ShouldIntervene("high"))
}

func TestGateAdvancesOnFailedAttemptsToo(t *testing.T) {
	now := time.Now()
	g := NewGate(10 * time.Second)
	g.now = func() time.Time { return now }

	// The caller marks regardless of playback outcome; a second attempt
	// right after is suppressed either way.
	g.MarkIntervened()
	require.False(t, g.ShouldIntervene("medium"))
}

func TestGateDefaultCooldown(t *testing.T) {
	g := NewGate(0)
	require.Equal(t, DefaultCooldown, g.Cooldown())
}

func TestClassifyScamType(t *testing.T) {
	cases := []struct {
		transcript string
		want       string
	}{
		{"buy an itunes gift card and scratch the codes", "gift_card"},
		{"the irs has a warrant and you will be arrested", "government"},
		{"your grandson needs bail money for his lawyer", "grandparent"},
		{"your computer has a virus, install teamviewer", "tech_support"},
		{"take the cash to the bitcoin atm", "crypto"},
		{"lovely weather we are having", "generic"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ClassifyScamType(tc.transcript), "transcript %q", tc.transcript)
	}
}

func TestClassifyTieGoesToFirstRegistered(t *testing.T) {
	// One gift_card keyword and one government keyword: gift_card is
	// registered first and wins the tie.
	got := ClassifyScamType("buy a gift card or face arrest")
	require.Equal(t, "gift_card", got)
}

func TestExtractEntities(t *testing.T) {
	e := ExtractEntities("the irs says buy itunes cards right now")
	require.Equal(t, "iTunes cards", e["payment_method"])
	require.Equal(t, "The IRS", e["authority"])

	defaults := ExtractEntities("nothing specific here")
	require.Equal(t, "gift cards", defaults["payment_method"])
	require.Equal(t, "government", defaults["authority"])
}
