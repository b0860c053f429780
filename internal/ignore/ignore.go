// Package ignore implements the .tsignore rule engine. The syntax is the
// familiar ignore-file subset: blank lines and '#' comments, '!' negation,
// a leading '/' anchoring to the rule file's directory, a trailing '/'
// restricting to directories, and '*', '?', '**' globs. Within one file the
// last matching rule wins; rules from deeper directories override rules
// from shallower ones. A file inside an ignored directory cannot be
// re-included, because scans do not descend into ignored directories.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/treestat/treestat/internal/utils"
)

// DefaultFilename is the rule file name scans look for in every directory.
const DefaultFilename = ".tsignore"

type pattern struct {
	negate   bool
	dirOnly  bool
	anchored bool
	re       *regexp.Regexp
}

type ruleGroup struct {
	// base is the tree-relative directory the rule file sits in, "" for
	// the tree root. Patterns match paths relative to base.
	base     string
	patterns []pattern
}

// Matcher accumulates rule files while a scan descends the tree and
// answers ignore queries for tree-relative paths.
type Matcher struct {
	filename string
	groups   []ruleGroup
}

// NewMatcher returns a Matcher looking for rule files named filename.
// An empty filename selects DefaultFilename.
func NewMatcher(filename string) *Matcher {
	if filename == "" {
		filename = DefaultFilename
	}
	return &Matcher{filename: filename}
}

// Filename returns the rule file name the matcher looks for.
func (m *Matcher) Filename() string { return m.filename }

// LoadDir parses the rule file in absDir, registered at tree-relative
// relDir ("" for the root). Missing files are not an error. Callers must
// load parent directories before children so precedence stays correct.
func (m *Matcher) LoadDir(absDir, relDir string) error {
	pats, err := parseFile(filepath.Join(absDir, m.filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(pats) == 0 {
		return nil
	}
	m.groups = append(m.groups, ruleGroup{base: filepath.ToSlash(relDir), patterns: pats})
	return nil
}

// Match reports whether the tree-relative path rel is ignored. isDir must
// reflect whether rel names a directory.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	ignored := false
	for _, g := range m.groups {
		sub, ok := relativeTo(g.base, rel)
		if !ok {
			continue
		}
		for _, p := range g.patterns {
			if p.dirOnly && !isDir {
				continue
			}
			if p.re.MatchString(sub) {
				ignored = !p.negate
			}
		}
	}
	return ignored
}

// relativeTo strips the group base from rel, returning false when rel is
// outside the base or is the base itself.
func relativeTo(base, rel string) (string, bool) {
	if base == "" {
		return rel, true
	}
	if !utils.PathWithin(base, rel) || rel == base {
		return "", false
	}
	return rel[len(base)+1:], true
}

func parseFile(path string) ([]pattern, error) {
	f, err := os.Open(path) // #nosec G304 -- path is rooted in the scanned tree
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pats []pattern
	s := bufio.NewScanner(f)
	for s.Scan() {
		if p, ok := parseLine(s.Text()); ok {
			pats = append(pats, p)
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return pats, nil
}

func parseLine(line string) (pattern, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return pattern{}, false
	}

	var p pattern
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = strings.TrimSpace(line[1:])
		if line == "" {
			return pattern{}, false
		}
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	// A slash anywhere before the final segment also anchors the rule,
	// matching how ignore files treat "a/b" versus "b".
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = strings.TrimPrefix(line, "/")
	} else if strings.Contains(line, "/") {
		p.anchored = true
	}
	p.re = compileGlob(line, p.anchored)
	return p, true
}

// compileGlob translates an ignore glob into a regexp: '**' crosses
// directory separators, '*' and '?' do not.
func compileGlob(glob string, anchored bool) *regexp.Regexp {
	esc := regexp.QuoteMeta(glob)
	esc = strings.ReplaceAll(esc, `\*\*`, "__DOUBLESTAR__")
	esc = strings.ReplaceAll(esc, `\*`, "[^/]*")
	esc = strings.ReplaceAll(esc, `\?`, "[^/]")
	esc = strings.ReplaceAll(esc, "__DOUBLESTAR__", ".*")

	var expr string
	if anchored {
		expr = "^" + esc + "$"
	} else {
		expr = "(^|.*/)" + esc + "$"
	}
	return regexp.MustCompile(expr)
}
