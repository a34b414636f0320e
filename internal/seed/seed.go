// Package seed loads literal discovery trees from YAML.
package seed

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"cybersentinel/internal/domain"
	"cybersentinel/internal/subdomain"
)

//go:embed default.yaml
var defaultSeed []byte

type node struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Risk     string `yaml:"risk"`
	DNS      string `yaml:"dns"`
	Hosting  string `yaml:"hosting"`
	IP       string `yaml:"ip"`
	Status   string `yaml:"status"`
	Children []node `yaml:"children"`
}

// Default returns the built-in company.com tree.
func Default() *subdomain.Tree {
	t, err := Parse(defaultSeed)
	if err != nil {
		panic(fmt.Sprintf("seed: default tree: %v", err))
	}
	return t
}

func LoadFile(path string) (*subdomain.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*subdomain.Tree, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*subdomain.Tree, error) {
	var roots []node
	if err := yaml.Unmarshal(data, &roots); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	nested := make([]subdomain.NestedNode, 0, len(roots))
	for _, r := range roots {
		n, err := convert(r)
		if err != nil {
			return nil, err
		}
		nested = append(nested, n)
	}
	t, err := subdomain.FromNested(nested)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	return t, nil
}

func convert(n node) (subdomain.NestedNode, error) {
	risk, err := domain.ParseRisk(n.Risk)
	if err != nil {
		return subdomain.NestedNode{}, fmt.Errorf("seed: %s: %w", n.Name, err)
	}
	status := domain.StatusActive
	if n.Status != "" {
		if status, err = domain.ParseStatus(n.Status); err != nil {
			return subdomain.NestedNode{}, fmt.Errorf("seed: %s: %w", n.Name, err)
		}
	}
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	out := subdomain.NestedNode{Node: domain.Subdomain{
		ID:      id,
		Name:    n.Name,
		Risk:    risk,
		DNS:     n.DNS,
		Hosting: n.Hosting,
		IP:      n.IP,
		Status:  status,
	}}
	for _, c := range n.Children {
		child, err := convert(c)
		if err != nil {
			return subdomain.NestedNode{}, err
		}
		out.Children = append(out.Children, child)
	}
	return out, nil
}
