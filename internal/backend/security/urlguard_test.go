package security

import (
	"strings"
	"testing"
)

func TestValidateBaseURL_RejectsPrivateRanges(t *testing.T) {
	tests := []struct {
		url      string
		category string
	}{
		{"http://10.0.0.5", "private"},
		{"https://172.16.1.1", "private"},
		{"https://172.31.255.255/v1", "private"},
		{"http://192.168.1.10:8080", "private"},
		{"https://127.0.0.1", "loopback"},
		{"http://169.254.10.20", "link-local"},
		{"http://[::1]", "loopback"},
		{"http://[::]", "unspecified"},
		{"https://[fc00::1]", "private"},
		{"https://[fdab::12]", "private"},
		{"http://0.0.0.0", "unspecified"},
		{"http://0.1.2.3", "reserved"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := ValidateBaseURL(tt.url)
			if err == nil {
				t.Fatalf("%s should be rejected", tt.url)
			}
			if !strings.Contains(err.Error(), tt.category) {
				t.Fatalf("error %q should mention %q", err, tt.category)
			}
		})
	}
}

func TestValidateBaseURL_BlocksMetadataEndpoints(t *testing.T) {
	for _, raw := range []string{
		"http://169.254.169.254/latest/meta-data",
		"https://metadata.google.internal/computeMetadata/v1",
		"https://METADATA.GOOGLE.INTERNAL",
		"http://metadata",
		"http://Metadata:8080",
	} {
		if _, err := ValidateBaseURL(raw); err == nil {
			t.Fatalf("%s should be rejected", raw)
		}
	}
}

func TestValidateBaseURL_RejectsBadSchemesAndShapes(t *testing.T) {
	for _, raw := range []string{
		"ftp://api.openai.com",
		"file:///etc/passwd",
		"gopher://example.com",
		"not a url at all",
		"/relative/path",
	} {
		if _, err := ValidateBaseURL(raw); err == nil {
			t.Fatalf("%s should be rejected", raw)
		}
	}
	if _, err := ValidateBaseURL("ftp://api.openai.com"); err == nil || !strings.Contains(err.Error(), "unsupported scheme") {
		t.Fatalf("scheme rejection should name the category, got %v", err)
	}
}

func TestValidateBaseURL_AcceptsKnownProvidersSilently(t *testing.T) {
	for _, raw := range []string{
		"https://api.openai.com",
		"https://api.openai.com/v1",
		"https://openrouter.ai/api/v1",
		"https://generativelanguage.googleapis.com",
		"https://dashscope.aliyuncs.com/compatible-mode/v1",
	} {
		obs, err := ValidateBaseURL(raw)
		if err != nil {
			t.Fatalf("%s should be accepted: %v", raw, err)
		}
		if len(obs) != 0 {
			t.Fatalf("%s should be silent, got observations %v", raw, obs)
		}
	}
}

func TestValidateBaseURL_LoopbackByNameIsSilent(t *testing.T) {
	obs, err := ValidateBaseURL("http://localhost:8080")
	if err != nil {
		t.Fatalf("localhost should be accepted: %v", err)
	}
	if len(obs) != 0 {
		t.Fatalf("localhost should be silent, got %v", obs)
	}
}

func TestValidateBaseURL_NonStandardProviderObserved(t *testing.T) {
	obs, err := ValidateBaseURL("http://example.com")
	if err != nil {
		t.Fatalf("example.com should be accepted: %v", err)
	}
	if !hasObservation(obs, ObservationNonStandardProvider) {
		t.Fatalf("expected non-standard-provider observation, got %v", obs)
	}
	if !hasObservation(obs, ObservationPlainHTTP) {
		t.Fatalf("expected plain-http observation, got %v", obs)
	}

	obs, err = ValidateBaseURL("https://llm.mycorp.example")
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if hasObservation(obs, ObservationPlainHTTP) {
		t.Fatalf("https URL should not be flagged plain-http: %v", obs)
	}
}

func TestValidateBaseURL_ExtraProvidersWidenAllowList(t *testing.T) {
	guard := Guard{ExtraProviders: []string{"llm.mycorp.example"}}
	obs, err := guard.ValidateBaseURL("https://llm.mycorp.example/v1")
	if err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if len(obs) != 0 {
		t.Fatalf("allow-listed host should be silent, got %v", obs)
	}
}

func hasObservation(obs []Observation, want Observation) bool {
	for _, o := range obs {
		if o == want {
			return true
		}
	}
	return false
}
