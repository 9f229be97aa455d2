package storage

import (
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"lessonkb/config"
)

// API clients are pooled process-wide, keyed by configuration fingerprint.
// Every collaborator that talks to the OpenAI-compatible backend (embedding,
// captioning, transcription) shares one client per configuration instead of
// constructing its own.
var clientPool = struct {
	mu      sync.Mutex
	clients map[string]*openai.Client
}{clients: make(map[string]*openai.Client)}

// Client returns the pooled API client for the given configuration,
// creating it on first use.
func Client(cfg *config.Config) *openai.Client {
	clientPool.mu.Lock()
	defer clientPool.mu.Unlock()

	key := cfg.Fingerprint()
	if cli, ok := clientPool.clients[key]; ok {
		return cli
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	cli := openai.NewClientWithConfig(oc)
	clientPool.clients[key] = cli
	return cli
}

// EvictClients drops every pooled client. The next Client call rebuilds
// from current configuration.
func EvictClients() {
	clientPool.mu.Lock()
	defer clientPool.mu.Unlock()
	clientPool.clients = make(map[string]*openai.Client)
}
