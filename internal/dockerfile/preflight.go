package dockerfile

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// Preflight is what a parse pass learned about a Dockerfile before handing
// it to the builder.
type Preflight struct {
	// Args holds the names of declared ARG instructions.
	Args []string

	baseImages []string
}

// Check parses the Dockerfile content. An unparsable Dockerfile fails the
// service the same way a build failure would, just without waiting for the
// builder to discover it.
func Check(content []byte) (*Preflight, error) {
	ast, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Dockerfile: %w", err)
	}

	result := &Preflight{}
	for _, child := range ast.AST.Children {
		switch strings.ToUpper(child.Value) {
		case "ARG":
			for n := child.Next; n != nil; n = n.Next {
				name := n.Value
				if idx := strings.Index(name, "="); idx >= 0 {
					name = name[:idx]
				}
				result.Args = append(result.Args, name)
			}
		case "FROM":
			if child.Next != nil {
				result.baseImages = append(result.baseImages, child.Next.Value)
			}
		}
	}

	if len(result.baseImages) == 0 {
		return nil, fmt.Errorf("Dockerfile has no FROM instruction")
	}
	return result, nil
}

// UnknownArgs returns supplied build args the Dockerfile never declares.
// They are harmless but usually a typo, so the publisher warns about them.
func (p *Preflight) UnknownArgs(supplied map[string]string) []string {
	declared := make(map[string]bool, len(p.Args))
	for _, name := range p.Args {
		declared[name] = true
	}

	var unknown []string
	for name := range supplied {
		if !declared[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}
