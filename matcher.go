package tubetap

import (
	"errors"
	"math"
	"regexp"
	"sort"
)

var (
	ErrDuplicateMatcher = errors.New("duplicate matcher name")
	ErrInvalidMatcher   = errors.New("invalid matcher")
	ErrUnknownMatcher   = errors.New("unknown matcher")
)

var (
	PriorityHighest int16 = math.MinInt16
	PriorityDefault int16 = 0
	PriorityLowest  int16 = math.MaxInt16
)

// An Event is what a Matcher extracts from a line of output: either a PathEvent or a ProgressEvent.
type Event interface {
	isEvent()
}

type PathKind int

// Path kinds in ascending order of authority.
const (
	PathCandidate PathKind = iota
	PathFinal
	PathRecord
)

func (k PathKind) String() string {
	switch k {
	case PathCandidate:
		return "candidate"
	case PathFinal:
		return "final"
	case PathRecord:
		return "record"
	default:
		return "unknown"
	}
}

// PathEvent announces a file path. Path has already had its surrounding quotes stripped.
type PathEvent struct {
	Path string
	Kind PathKind
}

func (PathEvent) isEvent() {}

// ExtractFunc turns the submatches of Matcher.Pattern into an Event. groups[0] is the whole match.
type ExtractFunc = func(groups []string) (Event, error)

// A Matcher recognises one kind of line in the output of the download tool.
type Matcher struct {
	Name    string
	Pattern *regexp.Regexp
	Extract ExtractFunc
	// Priority of the matcher, lower (including negative) means matching earlier.
	Priority int16
}

func (m Matcher) WithName(name string) Matcher {
	m.Name = name
	return m
}

func (m Matcher) WithPriority(priority int16) Matcher {
	m.Priority = priority
	return m
}

// A Match is the result of a Matcher successfully matching a line. Err is set if the line matched the pattern but
// extraction failed, in which case Event is nil.
type Match struct {
	MatcherName string
	Event       Event
	Err         error
}

// A MatcherRegistry is an ordered chain of Matcher instances that lines are tested against.
type MatcherRegistry struct {
	matchers   []*Matcher
	matcherMap map[string]*Matcher
}

// Add registers a Matcher with the MatcherRegistry. Matcher.Name, Matcher.Pattern and Matcher.Extract must be set, and
// Matcher.Name must be unique within the MatcherRegistry.
func (r *MatcherRegistry) Add(m Matcher) error {
	if r.matcherMap == nil {
		r.matcherMap = make(map[string]*Matcher)
	}
	if m.Name == "" || m.Pattern == nil || m.Extract == nil {
		return ErrInvalidMatcher
	}
	if _, ok := r.matcherMap[m.Name]; ok {
		return ErrDuplicateMatcher
	}
	r.matcherMap[m.Name] = &m
	r.matchers = append(r.matchers, r.matcherMap[m.Name])
	r.sortByPriority()
	return nil
}

// Create is a shortcut for Add(Matcher{Name: ..., Pattern: ..., Extract: ..., Priority: ...}).
func (r *MatcherRegistry) Create(name string, pattern *regexp.Regexp, f ExtractFunc, priority int16) error {
	return r.Add(Matcher{
		Name:     name,
		Pattern:  pattern,
		Extract:  f,
		Priority: priority,
	})
}

// GetPriority gets the priority of the named Matcher. If ErrUnknownMatcher is returned, the returned priority is the
// default priority.
func (r *MatcherRegistry) GetPriority(name string) (int16, error) {
	if m, ok := r.matcherMap[name]; ok {
		return m.Priority, nil
	}
	return PriorityDefault, ErrUnknownMatcher
}

// Len returns the number of registered matchers.
func (r *MatcherRegistry) Len() int {
	return len(r.matchers)
}

// List returns the names of registered matchers in priority order.
func (r *MatcherRegistry) List() []string {
	names := make([]string, 0, len(r.matchers))
	for _, m := range r.matchers {
		names = append(names, m.Name)
	}
	return names
}

// Match a line against each Matcher in priority order. Only the first matching Matcher is used; ok is false if no
// Matcher's pattern matched the line.
func (r *MatcherRegistry) Match(line string) (match Match, ok bool) {
	for _, m := range r.matchers {
		groups := m.Pattern.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		event, err := m.Extract(groups)
		return Match{MatcherName: m.Name, Event: event, Err: err}, true
	}
	return Match{}, false
}

// MustAdd wraps Add but panics if there is an error.
func (r *MatcherRegistry) MustAdd(m Matcher) {
	if err := r.Add(m); err != nil {
		panic(err)
	}
}

// MustCreate wraps Create but panics if there is an error.
func (r *MatcherRegistry) MustCreate(name string, pattern *regexp.Regexp, f ExtractFunc, priority int16) {
	if err := r.Create(name, pattern, f, priority); err != nil {
		panic(err)
	}
}

// Remove unregisters the named Matcher.
func (r *MatcherRegistry) Remove(name string) error {
	m, ok := r.matcherMap[name]
	if !ok {
		return ErrUnknownMatcher
	}
	delete(r.matcherMap, name)
	for i, other := range r.matchers {
		if other == m {
			r.matchers = append(r.matchers[:i], r.matchers[i+1:]...)
			break
		}
	}
	return nil
}

// SetPriority adjusts the priority of a named Matcher.
func (r *MatcherRegistry) SetPriority(name string, priority int16) error {
	if m, ok := r.matcherMap[name]; ok {
		m.Priority = priority
		r.sortByPriority()
		return nil
	}
	return ErrUnknownMatcher
}

func (r *MatcherRegistry) sortByPriority() {
	sort.SliceStable(r.matchers, func(i, j int) bool {
		return r.matchers[i].Priority < r.matchers[j].Priority
	})
}

// StripQuotes removes one pair of matching quote characters surrounding s. A lone or mismatched quote is left alone.
func StripQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if first == last && (first == '"' || first == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

var DefaultMatcherRegistry MatcherRegistry
