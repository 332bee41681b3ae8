package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// DecodeAgentYAML читает агента из YAML. Ключи те же, что в JSON-представлении;
// конфиг модуля выбирается по его type.
func DecodeAgentYAML(r io.Reader) (*domain.Agent, error) {
	var doc map[string]any
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode agent yaml: %w", err)
	}
	// yaml -> json, чтобы пройти через AgentModule.UnmarshalJSON
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert agent yaml: %w", err)
	}
	var a domain.Agent
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode agent: %w", err)
	}
	if a.ID == "" {
		return nil, fmt.Errorf("%w: agent id is required", domain.ErrInvalidAgent)
	}
	a.SyncLegacyMirrors()
	return &a, nil
}

// LoadAgentFile открывает файл и декодирует агента.
func LoadAgentFile(path string) (*domain.Agent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := DecodeAgentYAML(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}
