package selection

import (
	"go/scanner"
	"go/token"
	"strings"

	"github.com/paraita/dspot/types"
)

// Diversity greedily keeps candidates that are not too similar to any
// candidate kept before them. Similarity is the Jaccard index of the sets of
// Go tokens in the candidates' bodies. Candidates without a body are
// compared by name.
type Diversity struct {
	Threshold float64
}

func (d Diversity) Select(candidates []types.SelectionCandidate) []types.SelectionCandidate {
	var (
		out  []types.SelectionCandidate
		kept []map[string]struct{}
	)
	for _, c := range candidates {
		src := c.Body
		if src == "" {
			src = c.Name
		}
		tokens := tokenize(src)
		similar := false
		for _, k := range kept {
			if jaccard(tokens, k) >= d.Threshold {
				similar = true
				break
			}
		}
		if !similar {
			out = append(out, c)
			kept = append(kept, tokens)
		}
	}
	return out
}

// tokenize returns the set of tokens of a Go source fragment. Literals and
// identifiers keep their text so that variants differing only in input
// values stay distinguishable.
func tokenize(src string) map[string]struct{} {
	set := make(map[string]struct{})
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var s scanner.Scanner
	s.Init(file, []byte(src), nil, 0)
	for {
		_, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		switch {
		case tok == token.SEMICOLON && lit == "\n":
			continue
		case lit != "":
			set[tok.String()+":"+lit] = struct{}{}
		default:
			set[tok.String()] = struct{}{}
		}
	}
	if len(set) == 0 {
		for _, f := range strings.Fields(src) {
			set[f] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
