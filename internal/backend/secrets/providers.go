package secrets

// Gemini CLI authentication method ids, as accepted by the agent's
// authenticate request.
const (
	GeminiAuthOAuthPersonal = "oauth-personal"
	GeminiAuthAPIKey        = "gemini-api-key"
	GeminiAuthVertexAI      = "vertex-ai"
	GeminiAuthCloudShell    = "cloud-shell"
)

// ForProvider maps a UI provider name to the environment bindings its CLI
// expects. Unknown providers are assumed OpenAI-compatible, which is how
// every aggregator presents itself. baseURL is only attached where the
// OpenAI-shaped variables apply and must have passed the URL guard already.
func ForProvider(provider, apiKey, baseURL string) []Binding {
	switch provider {
	case "anthropic":
		return []Binding{{Name: "ANTHROPIC_API_KEY", Value: apiKey}}
	case "gemini", "google":
		return []Binding{{Name: "GEMINI_API_KEY", Value: apiKey}}
	case "groq":
		return []Binding{{Name: "GROQ_API_KEY", Value: apiKey}}
	case "together":
		return []Binding{{Name: "TOGETHER_API_KEY", Value: apiKey}}
	case "xai":
		return []Binding{{Name: "X_API_KEY", Value: apiKey}}
	default:
		// openai, openrouter, and anything unrecognised.
		bindings := []Binding{{Name: "OPENAI_API_KEY", Value: apiKey}}
		if baseURL != "" {
			bindings = append(bindings, Binding{Name: "OPENAI_BASE_URL", Value: baseURL})
		}
		return bindings
	}
}

// ForQwen maps the Qwen backend configuration to its OpenAI-compatible
// environment. baseURL must have passed the URL guard already.
func ForQwen(apiKey, baseURL, model string) []Binding {
	return []Binding{
		{Name: "OPENAI_API_KEY", Value: apiKey},
		{Name: "OPENAI_BASE_URL", Value: baseURL},
		{Name: "OPENAI_MODEL", Value: model},
	}
}

// ForGeminiAuth maps a Gemini CLI auth method to its environment bindings.
// OAuth and Cloud Shell authenticate out-of-band and need none.
func ForGeminiAuth(method, apiKey, vertexProject, vertexLocation string) []Binding {
	switch method {
	case GeminiAuthAPIKey:
		if apiKey == "" {
			return nil
		}
		return []Binding{{Name: "GEMINI_API_KEY", Value: apiKey}}
	case GeminiAuthVertexAI:
		var bindings []Binding
		if vertexProject != "" {
			bindings = append(bindings, Binding{Name: "GOOGLE_CLOUD_PROJECT", Value: vertexProject})
		}
		if vertexLocation != "" {
			bindings = append(bindings, Binding{Name: "GOOGLE_CLOUD_LOCATION", Value: vertexLocation})
		}
		return bindings
	default:
		return nil
	}
}
