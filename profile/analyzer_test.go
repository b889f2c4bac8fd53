package profile

import "testing"

func TestParseAnalysisTolerantOfProse(t *testing.T) {
	text := "Here is the analysis you asked for:\n" +
		`{"themes": ["discipline"], "growth_areas": ["consistency"], "goals": [], "strengths": [], "challenges": [], "insights": []}` +
		"\nLet me know if you need anything else."

	analysis, err := parseAnalysis(text)
	if err != nil {
		t.Fatalf("parseAnalysis: %v", err)
	}
	if len(analysis.Themes) != 1 || analysis.Themes[0] != "discipline" {
		t.Errorf("Themes = %v", analysis.Themes)
	}
	if len(analysis.GrowthAreas) != 1 || analysis.GrowthAreas[0] != "consistency" {
		t.Errorf("GrowthAreas = %v", analysis.GrowthAreas)
	}
}

func TestParseAnalysisRejectsNonJSON(t *testing.T) {
	if _, err := parseAnalysis("I could not analyze that conversation."); err == nil {
		t.Error("prose without JSON accepted")
	}
}
