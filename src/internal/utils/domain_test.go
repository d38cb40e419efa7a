package utils

import "testing"

func TestMatchDomain(t *testing.T) {
	tests := []struct {
		name            string
		sourceDomain    string
		matchesDomain   string
		wantMatches     bool
		wantSpecificity uint8
	}{
		{"exact match - single level", "com", "com", true, 1},
		{"exact match - four levels", "some.sub.domain.com", "some.sub.domain.com", true, 4},
		{"suffix match - TLD", "some.sub.domain.com", "com", true, 1},
		{"suffix match - three levels", "some.sub.domain.com", "sub.domain.com", true, 3},
		{"no match - partial label", "otherdomain.com", "domain.com", false, 0},
		{"no match - longer pattern", "com", "domain.com", false, 0},
		{"case insensitive", "SoMe.SuB.DoMaIn.CoM", "sUb.DoMaIn.cOm", true, 3},
		{"question name with root dot", "ads.example.", "example", true, 1},
		{"pattern with root dot", "ads.example", "ads.example.", true, 2},
		{"empty pattern", "example.com", "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMatches, gotSpecificity := MatchDomain(tt.sourceDomain, tt.matchesDomain)
			if gotMatches != tt.wantMatches {
				t.Errorf("MatchDomain() gotMatches = %v, want %v", gotMatches, tt.wantMatches)
			}
			if gotSpecificity != tt.wantSpecificity {
				t.Errorf("MatchDomain() gotSpecificity = %v, want %v", gotSpecificity, tt.wantSpecificity)
			}
		})
	}
}

func TestNormalizeDomain(t *testing.T) {
	if got := NormalizeDomain("Ads.Example.TEST."); got != "ads.example.test" {
		t.Errorf("Expected ads.example.test, got %s", got)
	}
}
