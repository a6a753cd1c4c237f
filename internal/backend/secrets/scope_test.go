package secrets

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestApplySetsAndCloseClears(t *testing.T) {
	bindings := []Binding{
		{Name: "TEST_SCOPE_KEY_A", Value: "value-a"},
		{Name: "TEST_SCOPE_KEY_B", Value: "value-b"},
	}
	scope, err := Apply(bindings)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for _, b := range bindings {
		if got := os.Getenv(b.Name); got != b.Value {
			t.Fatalf("%s = %q, want %q", b.Name, got, b.Value)
		}
	}

	scope.Close()

	for _, b := range bindings {
		if _, present := os.LookupEnv(b.Name); present {
			t.Fatalf("%s should be unset after Close", b.Name)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	scope, err := Apply([]Binding{{Name: "TEST_SCOPE_IDEMPOTENT", Value: "v"}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	scope.Close()
	// A variable set by someone else after teardown must survive a second
	// Close.
	t.Setenv("TEST_SCOPE_IDEMPOTENT", "other-owner")
	scope.Close()
	if got := os.Getenv("TEST_SCOPE_IDEMPOTENT"); got != "other-owner" {
		t.Fatalf("second Close must not clear again, got %q", got)
	}
}

func TestApplyEmptyNameRollsBack(t *testing.T) {
	_, err := Apply([]Binding{
		{Name: "TEST_SCOPE_ROLLBACK", Value: "v"},
		{Name: "", Value: "x"},
	})
	if err == nil {
		t.Fatal("expected error for empty binding name")
	}
	if _, present := os.LookupEnv("TEST_SCOPE_ROLLBACK"); present {
		t.Fatal("partial application should be rolled back")
	}
}

func TestNilScopeIsSafe(t *testing.T) {
	var scope *Scope
	scope.Close()
	if names := scope.Names(); names != nil {
		t.Fatalf("nil scope names = %v", names)
	}
}

func TestForProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		baseURL  string
		want     []Binding
	}{
		{"anthropic", "anthropic", "", []Binding{{Name: "ANTHROPIC_API_KEY", Value: "k"}}},
		{"gemini", "gemini", "", []Binding{{Name: "GEMINI_API_KEY", Value: "k"}}},
		{"google", "google", "", []Binding{{Name: "GEMINI_API_KEY", Value: "k"}}},
		{"groq", "groq", "", []Binding{{Name: "GROQ_API_KEY", Value: "k"}}},
		{"together", "together", "", []Binding{{Name: "TOGETHER_API_KEY", Value: "k"}}},
		{"xai", "xai", "", []Binding{{Name: "X_API_KEY", Value: "k"}}},
		{"openai", "openai", "", []Binding{{Name: "OPENAI_API_KEY", Value: "k"}}},
		{"openrouter with base url", "openrouter", "https://openrouter.ai/api/v1", []Binding{
			{Name: "OPENAI_API_KEY", Value: "k"},
			{Name: "OPENAI_BASE_URL", Value: "https://openrouter.ai/api/v1"},
		}},
		{"unknown provider", "acme-llm", "", []Binding{{Name: "OPENAI_API_KEY", Value: "k"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForProvider(tt.provider, "k", tt.baseURL)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("bindings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestForQwen(t *testing.T) {
	got := ForQwen("k", "https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen3-coder-plus")
	want := []Binding{
		{Name: "OPENAI_API_KEY", Value: "k"},
		{Name: "OPENAI_BASE_URL", Value: "https://dashscope.aliyuncs.com/compatible-mode/v1"},
		{Name: "OPENAI_MODEL", Value: "qwen3-coder-plus"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("bindings mismatch (-want +got):\n%s", diff)
	}
}

func TestForGeminiAuth(t *testing.T) {
	if got := ForGeminiAuth(GeminiAuthAPIKey, "k", "", ""); len(got) != 1 || got[0].Name != "GEMINI_API_KEY" {
		t.Fatalf("api-key method: %v", got)
	}
	if got := ForGeminiAuth(GeminiAuthAPIKey, "", "", ""); got != nil {
		t.Fatalf("api-key method without key should bind nothing: %v", got)
	}

	got := ForGeminiAuth(GeminiAuthVertexAI, "", "my-project", "us-central1")
	want := []Binding{
		{Name: "GOOGLE_CLOUD_PROJECT", Value: "my-project"},
		{Name: "GOOGLE_CLOUD_LOCATION", Value: "us-central1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("vertex bindings mismatch (-want +got):\n%s", diff)
	}

	for _, method := range []string{GeminiAuthOAuthPersonal, GeminiAuthCloudShell, "anything-else"} {
		if got := ForGeminiAuth(method, "k", "p", "l"); got != nil {
			t.Fatalf("method %q should bind nothing, got %v", method, got)
		}
	}
}
