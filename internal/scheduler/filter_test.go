package scheduler

import (
	"testing"

	"github.com/seiyaku/anibridge/internal/catalog"
)

func intp(v int) *int { return &v }

func entry(title, year, season, episodeCount string) catalog.Entry {
	return catalog.Entry{
		ID:           "id-" + title,
		Title:        title,
		Year:         year,
		Season:       season,
		EpisodeCount: episodeCount,
	}
}

func TestFilterMatches(t *testing.T) {
	tests := []struct {
		name     string
		criteria FilterCriteria
		entry    catalog.Entry
		want     bool
	}{
		{
			name:     "empty criteria matches everything",
			criteria: FilterCriteria{},
			entry:    entry("Anything", "2020", "Spring", "12"),
			want:     true,
		},
		{
			name:     "specific year member",
			criteria: FilterCriteria{SpecificYears: []int{2024}},
			entry:    entry("Show", "2024", "", ""),
			want:     true,
		},
		{
			name:     "specific year non-member",
			criteria: FilterCriteria{SpecificYears: []int{2023}},
			entry:    entry("Show", "2024", "", ""),
			want:     false,
		},
		{
			name:     "year range inclusive lower bound",
			criteria: FilterCriteria{YearMin: intp(2020), YearMax: intp(2024)},
			entry:    entry("Show", "2020", "", ""),
			want:     true,
		},
		{
			name:     "year below range",
			criteria: FilterCriteria{YearMin: intp(2020)},
			entry:    entry("Show", "2019", "", ""),
			want:     false,
		},
		{
			name:     "year above range",
			criteria: FilterCriteria{YearMax: intp(2024)},
			entry:    entry("Show", "2025", "", ""),
			want:     false,
		},
		{
			name:     "non-numeric year passes year constraints",
			criteria: FilterCriteria{YearMin: intp(2020), SpecificYears: []int{2024}},
			entry:    entry("Show", "unknown", "", ""),
			want:     true,
		},
		{
			name:     "season exact match",
			criteria: FilterCriteria{Seasons: []string{"Spring", "Fall"}},
			entry:    entry("Show", "", "Fall", ""),
			want:     true,
		},
		{
			name:     "season is not normalized",
			criteria: FilterCriteria{Seasons: []string{"Spring"}},
			entry:    entry("Show", "", "spring", ""),
			want:     false,
		},
		{
			name:     "min episodes satisfied",
			criteria: FilterCriteria{MinEpisodes: intp(12)},
			entry:    entry("Show", "", "", "24"),
			want:     true,
		},
		{
			name:     "min episodes below threshold",
			criteria: FilterCriteria{MinEpisodes: intp(12)},
			entry:    entry("Show", "", "", "6"),
			want:     false,
		},
		{
			name:     "include regex matches",
			criteria: FilterCriteria{IncludePatterns: []string{`S\d`}},
			entry:    entry("Show S2", "", "", ""),
			want:     true,
		},
		{
			name:     "include regex is case-insensitive",
			criteria: FilterCriteria{IncludePatterns: []string{"show"}},
			entry:    entry("My SHOW Title", "", "", ""),
			want:     true,
		},
		{
			name:     "include regex no match",
			criteria: FilterCriteria{IncludePatterns: []string{`S\d`}},
			entry:    entry("Show Special", "", "", ""),
			want:     false,
		},
		{
			name:     "invalid include pattern falls back to substring",
			criteria: FilterCriteria{IncludePatterns: []string{"[unclosed"}},
			entry:    entry("The [unclosed Saga", "", "", ""),
			want:     true,
		},
		{
			name:     "invalid include pattern substring absent",
			criteria: FilterCriteria{IncludePatterns: []string{"[unclosed"}},
			entry:    entry("Regular Show", "", "", ""),
			want:     false,
		},
		{
			name:     "any include pattern suffices",
			criteria: FilterCriteria{IncludePatterns: []string{"nope", "Show"}},
			entry:    entry("Show S1", "", "", ""),
			want:     true,
		},
		{
			name:     "exclude pattern rejects",
			criteria: FilterCriteria{ExcludePatterns: []string{"recap"}},
			entry:    entry("Show S1 Recap", "", "", ""),
			want:     false,
		},
		{
			name:     "all constraints must hold",
			criteria: FilterCriteria{SpecificYears: []int{2024}, IncludePatterns: []string{"Show"}},
			entry:    entry("Show S1", "2023", "", ""),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := compileFilter(tt.criteria)
			if got := f.matches(tt.entry); got != tt.want {
				t.Errorf("matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
