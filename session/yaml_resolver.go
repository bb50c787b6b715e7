package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/AltairaLabs/PromptKit/runtime/orchestrator"
	"github.com/AltairaLabs/PromptKit/runtime/retrieval"
)

// agentManifest is the on-disk K8s-manifest-style representation of one
// agent, matching the apiVersion/kind/metadata/spec shape used elsewhere
// in this module's YAML-backed repositories (PromptConfig, tool manifests):
// the same metav1.ObjectMeta gives agent manifests name/namespace/labels
// with Kubernetes conventions without this resolver talking to a cluster.
type agentManifest struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   metav1.ObjectMeta `yaml:"metadata,omitempty"`
	Spec       agentSpec         `yaml:"spec"`
}

type agentSpec struct {
	SystemPrompt       string           `yaml:"systemPrompt"`
	STTProvider        string           `yaml:"sttProvider"`
	LLMProvider        string           `yaml:"llmProvider"`
	TTSProvider        string           `yaml:"ttsProvider"`
	TTSVoice           string           `yaml:"ttsVoice"`
	Retrieval          retrieval.Config `yaml:"retrieval"`
	SoftFlushTokens    int              `yaml:"softFlushTokens"`
	HistoryTokenBudget int              `yaml:"historyTokenBudget"`
	Tools              []string         `yaml:"tools"`
	MinClientVersion   string           `yaml:"minClientVersion"`
}

// YAMLResolver is an AgentResolver backed by a directory of *.yaml/*.yml
// agent manifests, loaded once at construction and held in memory;
// configuration changes on disk take effect only after a new YAMLResolver
// is constructed, matching AgentResolver's no-mid-session-changes contract.
type YAMLResolver struct {
	mu     sync.RWMutex
	agents map[string]orchestrator.AgentReference
}

// NewYAMLResolver loads every *.yaml/*.yml file directly under dir as an
// agent manifest keyed by its metadata.name.
func NewYAMLResolver(dir string) (*YAMLResolver, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("session: read agent config dir %s: %w", dir, err)
	}

	r := &YAMLResolver{agents: make(map[string]orchestrator.AgentReference)}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := r.loadFile(filepath.Join(dir, entry.Name())); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *YAMLResolver) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("session: read agent manifest %s: %w", path, err)
	}

	var manifest agentManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("session: parse agent manifest %s: %w", path, err)
	}
	if manifest.Metadata.Name == "" {
		return fmt.Errorf("session: agent manifest %s missing metadata.name", path)
	}

	r.agents[manifest.Metadata.Name] = orchestrator.AgentReference{
		ID:                 manifest.Metadata.Name,
		SystemPrompt:       manifest.Spec.SystemPrompt,
		STTProviderID:      manifest.Spec.STTProvider,
		LLMProviderID:      manifest.Spec.LLMProvider,
		TTSProviderID:      manifest.Spec.TTSProvider,
		TTSVoice:           manifest.Spec.TTSVoice,
		Retrieval:          manifest.Spec.Retrieval,
		SoftFlushTokens:    manifest.Spec.SoftFlushTokens,
		HistoryTokenBudget: manifest.Spec.HistoryTokenBudget,
		Tools:              manifest.Spec.Tools,
		MinClientVersion:   manifest.Spec.MinClientVersion,
	}
	return nil
}

// Resolve looks agentID up among the loaded manifests.
func (r *YAMLResolver) Resolve(ctx context.Context, agentID string) (orchestrator.AgentReference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.agents[agentID]
	if !ok {
		return orchestrator.AgentReference{}, &UnknownAgentError{AgentID: agentID}
	}
	return ref, nil
}
