package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dovesieve/sieve/match"
)

func TestASCIICasemapEqualIsCaseInsensitive(t *testing.T) {
	assert.True(t, match.ASCIICasemap.Equal("Hello", "hello"))
	assert.False(t, match.ASCIICasemap.Equal("Hello", "goodbye"))
}

func TestOctetEqualIsCaseSensitive(t *testing.T) {
	assert.False(t, match.Octet.Equal("Hello", "hello"))
	assert.True(t, match.Octet.Equal("hello", "hello"))
}

func TestIsMatchType(t *testing.T) {
	ctx := &match.Context{Comparator: match.ASCIICasemap, Type: match.Is, Keys: []string{"sale"}}
	assert.True(t, ctx.MatchValue("SALE"))
	assert.False(t, ctx.MatchValue("no sale"))
}

func TestContainsMatchType(t *testing.T) {
	ctx := &match.Context{Comparator: match.ASCIICasemap, Type: match.Contains, Keys: []string{"sale"}}
	assert.True(t, ctx.MatchValue("Big SALE today"))
	assert.False(t, ctx.MatchValue("nothing here"))
}

func TestMatchesWildcardsAndCaptures(t *testing.T) {
	caps := &match.Captures{}
	ctx := &match.Context{Comparator: match.ASCIICasemap, Type: match.Matches, Keys: []string{"user+*@example.com"}, Caps: caps}
	assert.True(t, ctx.MatchValue("user+news@example.com"))
	assert.Equal(t, "news", caps.Get(1))
	assert.Equal(t, "user+news@example.com", caps.Get(0))
}

func TestMatchesQuestionMarkWildcard(t *testing.T) {
	ctx := &match.Context{Comparator: match.ASCIICasemap, Type: match.Matches, Keys: []string{"a?c"}}
	assert.True(t, ctx.MatchValue("abc"))
	assert.False(t, ctx.MatchValue("ac"))
}

func TestMatchValueChecksEveryKey(t *testing.T) {
	ctx := &match.Context{Comparator: match.ASCIICasemap, Type: match.Is, Keys: []string{"a", "b", "c"}}
	assert.True(t, ctx.MatchValue("b"))
	assert.False(t, ctx.MatchValue("z"))
}

func TestAddressPartExtraction(t *testing.T) {
	assert.Equal(t, "user@example.com", match.AddressAll.Extract("user@example.com"))
	assert.Equal(t, "user", match.AddressLocalPart.Extract("user@example.com"))
	assert.Equal(t, "example.com", match.AddressDomain.Extract("user@example.com"))
}

func TestAddressUserAndDetailSplitOnPlus(t *testing.T) {
	assert.Equal(t, "user", match.AddressUser.Extract("user+news@example.com"))
	assert.Equal(t, "news", match.AddressDetail.Extract("user+news@example.com"))
	assert.Equal(t, "", match.AddressDetail.Extract("user@example.com"))
}

func TestAddressPartWithNoAtSignReturnsWholeAsLocal(t *testing.T) {
	assert.Equal(t, "justauser", match.AddressLocalPart.Extract("justauser"))
	assert.Equal(t, "", match.AddressDomain.Extract("justauser"))
}

func TestMatchCountCompareWithOp(t *testing.T) {
	ctx := &match.Context{Keys: []string{"2"}, Op: match.OpGT}
	assert.True(t, ctx.MatchCount(3))
	assert.False(t, ctx.MatchCount(2))
	assert.False(t, ctx.MatchCount(1))
}

func TestMatchCountNonNumericKeyNeverMatches(t *testing.T) {
	ctx := &match.Context{Keys: []string{"not-a-number"}, Op: match.OpEQ}
	assert.False(t, ctx.MatchCount(0))
}

func TestMatchCountNoKeysNeverMatches(t *testing.T) {
	ctx := &match.Context{Op: match.OpEQ}
	assert.False(t, ctx.MatchCount(0))
}

func TestValueMatchTypeNumericComparison(t *testing.T) {
	mt := match.ValueMatchType(match.OpGT)
	assert.True(t, mt.Test(match.ASCIICasemap, "10", "2", nil))
	assert.False(t, mt.Test(match.ASCIICasemap, "2", "10", nil))
}

func TestValueMatchTypeLexicalFallback(t *testing.T) {
	mt := match.ValueMatchType(match.OpLT)
	assert.True(t, mt.Test(match.ASCIICasemap, "abc", "abd", nil))
}

func TestValueMatchTypeEqNe(t *testing.T) {
	eq := match.ValueMatchType(match.OpEQ)
	ne := match.ValueMatchType(match.OpNE)
	assert.True(t, eq.Test(match.ASCIICasemap, "x", "x", nil))
	assert.True(t, ne.Test(match.ASCIICasemap, "x", "y", nil))
}

func TestCoreComparatorsAndMatchTypesRegistered(t *testing.T) {
	cmps := match.CoreComparators()
	require.Contains(t, cmps, "i;octet")
	require.Contains(t, cmps, "i;ascii-casemap")

	types := match.CoreMatchTypes()
	require.Contains(t, types, "is")
	require.Contains(t, types, "contains")
	require.Contains(t, types, "matches")
}

func TestCapturesOverflowBeyondCapacityIsDropped(t *testing.T) {
	c := &match.Captures{}
	c.Set(match.Capacity+5, "ignored")
	assert.Equal(t, "", c.Get(match.Capacity+5))
}

func TestCapturesResetClearsValues(t *testing.T) {
	c := &match.Captures{}
	c.Set(0, "whole")
	c.Set(1, "group")
	c.Reset()
	assert.Equal(t, "", c.Get(0))
	assert.Equal(t, "", c.Get(1))
}
