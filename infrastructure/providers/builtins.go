package providers

import "github.com/ahrav/rag-arena/internal/ports"

// BuiltinAPIVersion is the adapter API version the built-in adapters
// declare when registering.
const BuiltinAPIVersion = "v1.0"

// RegisterBuiltins registers the adapters that ship with the engine.
// Registration errors are only possible when a name collides with an
// adapter already registered by the caller.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		ctor ports.ProviderConstructor
		info ports.AdapterInfo
	}{
		{
			ctor: newHTTPAPIProvider,
			info: ports.AdapterInfo{
				Name:       HTTPAPIAdapterName,
				APIVersion: BuiltinAPIVersion,
				OptionsSchema: map[string]string{
					"endpoint":        "search endpoint URL (required)",
					"auth_header":     "header carrying the credential, default Authorization",
					"api_key_env":     "name of the secret holding the API key",
					"timeout_seconds": "per-request timeout in seconds",
					"max_retries":     "retry attempts for transient failures",
				},
			},
		},
		{
			ctor: newOpenAIVectorProvider,
			info: ports.AdapterInfo{
				Name:            OpenAIVectorAdapterName,
				APIVersion:      BuiltinAPIVersion,
				RequiredEnvVars: []string{"OPENAI_API_KEY"},
				OptionsSchema: map[string]string{
					"model":       "embedding model, default " + openAIVectorDefaultModel,
					"base_url":    "override for the OpenAI API base URL",
					"api_key_env": "name of the secret holding the API key, default OPENAI_API_KEY",
					"documents":   "inline corpus, list of {id, text, source} entries (required)",
				},
			},
		},
		{
			ctor: newRediSearchProvider,
			info: ports.AdapterInfo{
				Name:       RediSearchAdapterName,
				APIVersion: BuiltinAPIVersion,
				OptionsSchema: map[string]string{
					"addr":         "redis host:port (required)",
					"index":        "RediSearch index name (required)",
					"text_field":   "document field holding chunk text, default text",
					"id_field":     "document field holding the chunk ID",
					"username":     "redis ACL username",
					"password_env": "name of the secret holding the redis password",
					"db":           "redis database number",
				},
			},
		},
	}

	for _, b := range builtins {
		if err := r.Register(b.info.Name, b.ctor, b.info); err != nil {
			return err
		}
	}
	return nil
}
