package metrics

import "testing"

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/api/v1/propagate", "/api/v1/propagate"},
		{"/api/v1/presets", "/api/v1/presets"},

		// Parameterized job routes collapse to one label each.
		{"/api/v1/jobs/abc123", "/api/v1/jobs/{id}"},
		{"/api/v1/jobs/def456", "/api/v1/jobs/{id}"},
		{"/api/v1/jobs/abc123/events", "/api/v1/jobs/{id}/events"},
		{"/api/v1/jobs/abc123/result", "/api/v1/jobs/{id}/result"},

		// Unknown/bot paths collapse to "other".
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/api/v1/jobs/abc/other/thing", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that many unique job IDs produce
// exactly 1 distinct path label, not one per ID.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		label := normalizeRoute("/api/v1/jobs/" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
		seen[label] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}
