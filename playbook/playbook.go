package playbook

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scene is one named stage of a conversation. Scenes are immutable after
// load; a transition only swaps which scene a session points at.
type Scene struct {
	ID       string
	Play     string
	Prompt   string
	Bindings map[string]Binding
}

// Playbook is the parsed, immutable definition of a call's behavior. One
// Playbook value is shared read-only by every session running it.
type Playbook struct {
	Config     Config
	BasePrompt string

	scenes     map[string]*Scene
	sceneOrder []string
}

// Load reads a playbook file: YAML front matter between "---" markers,
// followed by the base system prompt as the body.
func Load(path string) (*Playbook, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read playbook: %w", err)
	}
	return Parse(content)
}

func Parse(content []byte) (*Playbook, error) {
	text := string(content)
	if !strings.HasPrefix(text, "---") {
		return nil, configErrorf("", "missing front matter")
	}
	parts := strings.SplitN(text, "---", 3)
	if len(parts) < 3 {
		return nil, configErrorf("", "invalid front matter format")
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(parts[1]), &cfg); err != nil {
		return nil, configErrorf("", "parse front matter: %v", err)
	}

	pb := &Playbook{
		Config:     cfg,
		BasePrompt: strings.TrimSpace(parts[2]),
		scenes:     make(map[string]*Scene),
	}

	for name, tmpl := range cfg.Collectors {
		if tmpl == nil {
			return nil, configErrorf("dtmfCollectors."+name, "empty template")
		}
		tmpl.Normalize()
		if tmpl.MinDigits > tmpl.MaxDigits && tmpl.MaxDigits > 0 {
			return nil, configErrorf("dtmfCollectors."+name, "minDigits %d exceeds maxDigits %d", tmpl.MinDigits, tmpl.MaxDigits)
		}
		if err := tmpl.Compile(); err != nil {
			return nil, configErrorf("dtmfCollectors."+name, "%v", err)
		}
	}

	for i := range cfg.Scenes {
		sc := cfg.Scenes[i]
		if sc.ID == "" {
			return nil, configErrorf("scenes", "scene %d has no id", i)
		}
		if _, dup := pb.scenes[sc.ID]; dup {
			return nil, configErrorf("scenes", "duplicate scene id %q", sc.ID)
		}
		scene := &Scene{
			ID:       sc.ID,
			Play:     sc.Play,
			Prompt:   sc.Prompt,
			Bindings: make(map[string]Binding, len(sc.DTMF)),
		}
		for digit, raw := range sc.DTMF {
			b, err := parseBinding(raw)
			if err != nil {
				return nil, configErrorf(fmt.Sprintf("scenes.%s.dtmf.%s", sc.ID, digit), "%v", err)
			}
			scene.Bindings[digit] = b
		}
		pb.scenes[sc.ID] = scene
		pb.sceneOrder = append(pb.sceneOrder, sc.ID)
	}

	if err := pb.validateReferences(); err != nil {
		return nil, err
	}
	return pb, nil
}

func (p *Playbook) validateReferences() error {
	for _, id := range p.sceneOrder {
		for digit, b := range p.scenes[id].Bindings {
			field := fmt.Sprintf("scenes.%s.dtmf.%s", id, digit)
			switch b.Action {
			case BindGoto:
				if _, ok := p.scenes[b.Target]; !ok {
					return configErrorf(field, "unknown scene %q", b.Target)
				}
			case BindCollect:
				if _, ok := p.Config.Collectors[b.Target]; !ok {
					return configErrorf(field, "unknown collector %q", b.Target)
				}
			}
		}
	}
	return nil
}

// Scene looks up a scene by id.
func (p *Playbook) Scene(id string) (*Scene, bool) {
	s, ok := p.scenes[id]
	return s, ok
}

// EntryScene returns the first declared scene, or nil when the playbook has
// no scenes and runs on the base prompt alone.
func (p *Playbook) EntryScene() *Scene {
	if len(p.sceneOrder) == 0 {
		return nil
	}
	return p.scenes[p.sceneOrder[0]]
}

func (p *Playbook) SceneIDs() []string {
	out := make([]string, len(p.sceneOrder))
	copy(out, p.sceneOrder)
	return out
}

// Collector looks up a collector template by name.
func (p *Playbook) Collector(name string) (*CollectorTemplate, bool) {
	t, ok := p.Config.Collectors[name]
	return t, ok
}

// CollectorNames returns the configured collector names, sorted. Surfaced to
// the handler when it references a collector that does not exist.
func (p *Playbook) CollectorNames() []string {
	names := make([]string, 0, len(p.Config.Collectors))
	for name := range p.Config.Collectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalConfig re-serializes the global section, including bounds derived
// from `digits` during Normalize.
func (p *Playbook) MarshalConfig() ([]byte, error) {
	return yaml.Marshal(p.Config)
}
