package blocklist

import (
	"strings"
	"testing"

	"github.com/riskcore/riskcored/internal/category"
	"github.com/stretchr/testify/assert"
)

func TestParseLine_TrimAndDrop(t *testing.T) {
	_, ok := ParseLine("   ", category.KindIP)
	assert.False(t, ok)

	_, ok = ParseLine("# a comment", category.KindIP)
	assert.False(t, ok)

	entry, ok := ParseLine("  192.168.1.1  ", category.KindIP)
	assert.True(t, ok)
	assert.Equal(t, "192.168.1.1", entry)
}

func TestParseLine_TruncatesAtFirstOfHashSemicolonTab(t *testing.T) {
	entry, ok := ParseLine("10.0.0.0/8 # a network", category.KindIP)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", entry)

	entry, ok = ParseLine("10.0.0.0/8; comment", category.KindIP)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", entry)

	entry, ok = ParseLine("10.0.0.0/8\tcomment", category.KindIP)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", entry)
}

func TestParseLine_SemicolonThenHashTruncatesAtWhicheverIsFirst(t *testing.T) {
	// '#' appears before ';' in the line -> truncate at '#'.
	entry, ok := ParseLine("10.0.0.0/8 # first ; second", category.KindIP)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", entry)

	// ';' appears before '#' -> must truncate at ';', even though a naive
	// "try # then ; then \t" scan would find '#' and cut there instead.
	entry, ok = ParseLine("10.0.0.0/8 ; first # second", category.KindIP)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.0/8", entry)
}

func TestParseLine_EmptyAfterTruncationIsDropped(t *testing.T) {
	_, ok := ParseLine("# leading hash makes the whole line a comment", category.KindIP)
	assert.False(t, ok)

	// A leading ';' survives the initial whitespace trim (it isn't
	// whitespace) but truncates the line to nothing at step 4.
	_, ok = ParseLine(";leftover after truncation is dropped", category.KindIP)
	assert.False(t, ok)
}

func TestParseLine_EmailLowercased(t *testing.T) {
	entry, ok := ParseLine("  TEMPMAIL.COM  ", category.KindEmail)
	assert.True(t, ok)
	assert.Equal(t, "tempmail.com", entry)
}

func TestParseLine_IPKeepsCIDRVerbatim(t *testing.T) {
	entry, ok := ParseLine("203.0.113.0/24", category.KindIP)
	assert.True(t, ok)
	assert.Equal(t, "203.0.113.0/24", entry)
}

func TestParseReader_DedupsAndSkipsComments(t *testing.T) {
	data := `
# header comment
tempmail.com
TEMPMAIL.COM

guerrillamail.com ; throwaway
`
	entries, err := ParseReader(strings.NewReader(data), category.KindEmail)
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.True(t, entries["tempmail.com"])
	assert.True(t, entries["guerrillamail.com"])
}
