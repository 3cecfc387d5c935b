package memory

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/marktree/pkg/domain"
	"gopkg.in/yaml.v3"
)

// LoadSeed parses a YAML list of top-level nodes. Nested children are allowed and
// ids are optional; nodes without an id get one from the store's generator.
//
//	- title: Toolbar
//	  children:
//	    - title: Go
//	      url: https://go.dev
func LoadSeed(r io.Reader) ([]*domain.Node, error) {
	var nodes []*domain.Node
	if err := yaml.NewDecoder(r).Decode(&nodes); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	return nodes, nil
}

// LoadSeedFile is LoadSeed for a path.
func LoadSeedFile(path string) ([]*domain.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// NewFromNodes creates a store whose root folder holds nodes.
// This handles id assignment and index normalization automatically, improving DX for tests.
func NewFromNodes(nodes []*domain.Node, opts ...Option) (*Store, error) {
	s := NewStore(opts...)
	root := &domain.Node{ID: domain.RootID, DateAdded: s.now()}
	for _, n := range nodes {
		root.Children = append(root.Children, s.assignIDs(n.Clone()))
	}
	if _, err := s.Replace([]*domain.Node{root}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) assignIDs(n *domain.Node) *domain.Node {
	if n.ID == "" {
		n.ID = s.newID()
	}
	if n.DateAdded.IsZero() {
		n.DateAdded = s.now()
	}
	for _, c := range n.Children {
		s.assignIDs(c)
	}
	return n
}
