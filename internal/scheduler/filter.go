package scheduler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/seiyaku/anibridge/internal/catalog"
)

// FilterCriteria selects catalog entries for automatic download. Absent
// constraints are always satisfied; set constraints combine with AND.
type FilterCriteria struct {
	YearMin         *int     `json:"yearMin,omitempty"`
	YearMax         *int     `json:"yearMax,omitempty"`
	SpecificYears   []int    `json:"specificYears,omitempty"`
	Seasons         []string `json:"seasons,omitempty"`
	MinEpisodes     *int     `json:"minEpisodes,omitempty"`
	IncludePatterns []string `json:"includePatterns,omitempty"`
	ExcludePatterns []string `json:"excludePatterns,omitempty"`
}

// pattern is either a compiled case-insensitive regular expression or,
// when the expression does not compile, a literal substring.
type pattern struct {
	re      *regexp.Regexp
	literal string
}

func compilePattern(expr string) pattern {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return pattern{literal: strings.ToLower(expr)}
	}
	return pattern{re: re}
}

func (p pattern) match(s string) bool {
	if p.re != nil {
		return p.re.MatchString(s)
	}
	return strings.Contains(strings.ToLower(s), p.literal)
}

// compiledFilter holds FilterCriteria with its patterns compiled once,
// rather than per evaluated entry.
type compiledFilter struct {
	criteria FilterCriteria
	years    map[int]struct{}
	seasons  map[string]struct{}
	include  []pattern
	exclude  []pattern
}

func compileFilter(criteria FilterCriteria) *compiledFilter {
	f := &compiledFilter{criteria: criteria}

	if len(criteria.SpecificYears) > 0 {
		f.years = make(map[int]struct{}, len(criteria.SpecificYears))
		for _, y := range criteria.SpecificYears {
			f.years[y] = struct{}{}
		}
	}
	if len(criteria.Seasons) > 0 {
		f.seasons = make(map[string]struct{}, len(criteria.Seasons))
		for _, s := range criteria.Seasons {
			f.seasons[s] = struct{}{}
		}
	}
	for _, expr := range criteria.IncludePatterns {
		f.include = append(f.include, compilePattern(expr))
	}
	for _, expr := range criteria.ExcludePatterns {
		f.exclude = append(f.exclude, compilePattern(expr))
	}
	return f
}

// matches reports whether the entry satisfies every set constraint.
// Non-numeric year and episode-count values pass the numeric
// constraints rather than excluding the entry.
func (f *compiledFilter) matches(entry catalog.Entry) bool {
	if year, err := strconv.Atoi(strings.TrimSpace(entry.Year)); err == nil {
		if f.criteria.YearMin != nil && year < *f.criteria.YearMin {
			return false
		}
		if f.criteria.YearMax != nil && year > *f.criteria.YearMax {
			return false
		}
		if f.years != nil {
			if _, ok := f.years[year]; !ok {
				return false
			}
		}
	}

	if f.seasons != nil {
		if _, ok := f.seasons[entry.Season]; !ok {
			return false
		}
	}

	if f.criteria.MinEpisodes != nil {
		if count, err := strconv.Atoi(strings.TrimSpace(entry.EpisodeCount)); err == nil {
			if count < *f.criteria.MinEpisodes {
				return false
			}
		}
	}

	if len(f.include) > 0 {
		matched := false
		for _, p := range f.include {
			if p.match(entry.Title) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	for _, p := range f.exclude {
		if p.match(entry.Title) {
			return false
		}
	}

	return true
}
