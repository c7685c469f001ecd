package tubetap

import (
	"errors"
	"regexp"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func pathMatcher(kind PathKind) ExtractFunc {
	return func(groups []string) (Event, error) {
		return PathEvent{Path: groups[1], Kind: kind}, nil
	}
}

func TestMatcherRegistry_Add(t *testing.T) {
	assert := assert_.New(t)
	r := MatcherRegistry{}

	assert.Equal(0, r.Len())
	assert.Nil(r.Create("a", regexp.MustCompile(`^a (.*)$`), pathMatcher(PathCandidate), PriorityDefault))
	assert.Equal(ErrDuplicateMatcher, r.Create("a", regexp.MustCompile(`^b$`), pathMatcher(PathCandidate), PriorityDefault))
	assert.Equal(ErrInvalidMatcher, r.Add(Matcher{Name: "", Pattern: regexp.MustCompile(`x`), Extract: pathMatcher(PathCandidate)}))
	assert.Equal(ErrInvalidMatcher, r.Add(Matcher{Name: "no-pattern", Extract: pathMatcher(PathCandidate)}))
	assert.Equal(ErrInvalidMatcher, r.Add(Matcher{Name: "no-extract", Pattern: regexp.MustCompile(`x`)}))
	assert.Equal(1, r.Len())

	assert.Panics(func() { r.MustCreate("a", regexp.MustCompile(`x`), pathMatcher(PathCandidate), PriorityDefault) })
}

func TestMatcherRegistry_Priority(t *testing.T) {
	assert := assert_.New(t)
	r := MatcherRegistry{}

	m := Matcher{Pattern: regexp.MustCompile(`x`), Extract: pathMatcher(PathCandidate)}
	r.MustAdd(m.WithName("default1"))
	r.MustAdd(m.WithName("lowest").WithPriority(PriorityLowest))
	r.MustAdd(m.WithName("default2"))
	r.MustAdd(m.WithName("highest").WithPriority(PriorityHighest))
	// Equal priorities keep insertion order
	assert.Equal([]string{"highest", "default1", "default2", "lowest"}, r.List())

	assert.Nil(r.SetPriority("default2", -1))
	assert.Equal([]string{"highest", "default2", "default1", "lowest"}, r.List())
	p, err := r.GetPriority("default2")
	assert.Nil(err)
	assert.Equal(int16(-1), p)

	p, err = r.GetPriority("missing")
	assert.Equal(ErrUnknownMatcher, err)
	assert.Equal(PriorityDefault, p)
	assert.Equal(ErrUnknownMatcher, r.SetPriority("missing", 1))

	assert.Nil(r.Remove("default1"))
	assert.Equal(ErrUnknownMatcher, r.Remove("default1"))
	assert.Equal([]string{"highest", "default2", "lowest"}, r.List())
}

func TestMatcherRegistry_Match(t *testing.T) {
	assert := assert_.New(t)
	r := MatcherRegistry{}
	failure := errors.New("cannot extract")

	r.MustCreate("specific", regexp.MustCompile(`^file: (.+)$`), pathMatcher(PathFinal), -1)
	r.MustCreate("general", regexp.MustCompile(`^(\w+): .+$`), pathMatcher(PathCandidate), 0)
	r.MustCreate("broken", regexp.MustCompile(`^broken$`), func([]string) (Event, error) { return nil, failure }, 1)

	// Only the first matching matcher produces an event
	match, ok := r.Match("file: a.mp3")
	assert.True(ok)
	assert.Equal("specific", match.MatcherName)
	assert.Equal(PathEvent{Path: "a.mp3", Kind: PathFinal}, match.Event)
	assert.Nil(match.Err)

	match, ok = r.Match("other: a.mp3")
	assert.True(ok)
	assert.Equal("general", match.MatcherName)
	assert.Equal(PathEvent{Path: "other", Kind: PathCandidate}, match.Event)

	match, ok = r.Match("broken")
	assert.True(ok)
	assert.Equal(failure, match.Err)
	assert.Nil(match.Event)

	_, ok = r.Match("nothing to see")
	assert.False(ok)
}

func TestPathKind_String(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("candidate", PathCandidate.String())
	assert.Equal("final", PathFinal.String())
	assert.Equal("record", PathRecord.String())
	assert.Equal("unknown", PathKind(99).String())
}

func TestStripQuotes(t *testing.T) {
	assert := assert_.New(t)

	cases := map[string]string{
		`"a b.mp3"`:   "a b.mp3",
		`'a b.mp3'`:   "a b.mp3",
		`a b.mp3`:     "a b.mp3",
		`"a b.mp3`:    `"a b.mp3`,
		`a b.mp3"`:    `a b.mp3"`,
		`"a b.mp3'`:   `"a b.mp3'`,
		`"`:           `"`,
		`""`:          "",
		`""nested""`:  `"nested"`,
		`"it's.mp3"`:  "it's.mp3",
		`'say "hi"'`:  `say "hi"`,
		``:            ``,
		`"/x/y z.mp4"`: "/x/y z.mp4",
	}
	for in, out := range cases {
		assert.Equal(out, StripQuotes(in), in)
	}

	// Stripping is idempotent for paths that don't themselves start and end with a quote
	for _, in := range []string{`"a.mp3"`, `'a.mp3'`, `a.mp3`} {
		once := StripQuotes(in)
		assert.Equal(once, StripQuotes(once), in)
	}
}
