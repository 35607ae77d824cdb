package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docket-cli/internal/model"
)

func TestSplitPartiesNumbered(t *testing.T) {
	raw := "1) Ramesh Kumar Advocate - S K Sharma 2) Suresh Kumar Advocate - P Verma"
	parties := SplitParties(raw, true)
	require.Len(t, parties, 2)

	assert.Equal(t, "Ramesh Kumar", parties[0].Name)
	assert.Equal(t, "S K Sharma", parties[0].Advocate)
	assert.True(t, parties[0].IsPetitioner)
	assert.Equal(t, "Suresh Kumar", parties[1].Name)
	assert.Equal(t, "P Verma", parties[1].Advocate)
}

func TestSplitPartiesSingleUnnumbered(t *testing.T) {
	parties := SplitParties("State of Maharashtra", false)
	require.Len(t, parties, 1)
	assert.Equal(t, "State of Maharashtra", parties[0].Name)
	assert.Empty(t, parties[0].Advocate)
	assert.False(t, parties[0].IsPetitioner)
}

func TestSplitPartiesAdvocateSeparators(t *testing.T) {
	for _, raw := range []string{
		"1) A Singh Advocate - B Rao",
		"1) A Singh Advocate: B Rao",
		"1) A Singh Advocate– B Rao",
	} {
		parties := SplitParties(raw, true)
		require.Len(t, parties, 1, raw)
		assert.Equal(t, "A Singh", parties[0].Name, raw)
		assert.Equal(t, "B Rao", parties[0].Advocate, raw)
	}
}

func TestSplitPartiesEmpty(t *testing.T) {
	assert.Nil(t, SplitParties("", true))
	assert.Nil(t, SplitParties("N/A", true))
	assert.Nil(t, SplitParties("   ", false))
}

func TestSplitPartiesKeepsRawText(t *testing.T) {
	parties := SplitParties("1) Ramesh Kumar Advocate - S K Sharma", true)
	require.Len(t, parties, 1)
	assert.Contains(t, parties[0].RawText, "Ramesh Kumar")
	assert.Contains(t, parties[0].RawText, "S K Sharma")
}

func TestFormatPartyList(t *testing.T) {
	mk := func(names ...string) []model.Party {
		out := make([]model.Party, len(names))
		for i, n := range names {
			out[i] = model.Party{Name: n}
		}
		return out
	}

	assert.Equal(t, "Unknown", FormatPartyList(nil))
	assert.Equal(t, "A", FormatPartyList(mk("A")))
	assert.Equal(t, "A, B", FormatPartyList(mk("A", "B")))
	assert.Equal(t, "A, B et al.", FormatPartyList(mk("A", "B", "C")))
	assert.Equal(t, "A, B et al.", FormatPartyList(mk("A", "B", "C", "D")))
}

func TestShortTitle(t *testing.T) {
	parties := []model.Party{
		{IsPetitioner: true, Name: "Ramesh Kumar"},
		{IsPetitioner: false, Name: "State of Maharashtra"},
		{IsPetitioner: false, Name: "Union of India"},
		{IsPetitioner: false, Name: "Collector"},
	}
	assert.Equal(t, "Ramesh Kumar vs State of Maharashtra, Union of India et al.", ShortTitle(parties))
	assert.Equal(t, "Unknown vs Unknown", ShortTitle(nil))
}
