package config

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

// NewLLMForTest creates an LLM config for testing purposes
func NewLLMForTest(provider, geminiProject, claudeAPIKey string) *LLM {
	return &LLM{
		provider:       provider,
		geminiProject:  geminiProject,
		geminiLocation: "us-central1",
		claudeAPIKey:   claudeAPIKey,
		maxTokens:      800,
	}
}

// NewEmbeddingForTest creates an Embedding config for testing purposes
func NewEmbeddingForTest(provider string, dimension int) *Embedding {
	return &Embedding{provider: provider, dimension: dimension}
}

// NewIndexForTest creates an Index config for testing purposes
func NewIndexForTest(backend, dir string) *Index {
	return &Index{backend: backend, dir: dir}
}

// NewSessionForTest creates a Session config for testing purposes
func NewSessionForTest(backend, redisAddr string) *Session {
	return &Session{backend: backend, redisAddr: redisAddr}
}
