// Package manifest parses requirements-style dependency manifests.
package manifest

import (
	"errors"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
)

var _ ports.ManifestParser = (*Parser)(nil)

var (
	requirementRegex = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)
	specifierRegex   = regexp.MustCompile(`^(===|==|!=|<=|>=|~=|<|>)\s*([A-Za-z0-9.*+!_-]+)$`)
	extraRegex       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	commentRegex     = regexp.MustCompile(`(^|\s)#.*$`)
)

var includeFlags = []string{"--requirement", "-r"}

// Parser implements ports.ManifestParser for requirements files.
type Parser struct {
	resolver ports.ContextResolver
}

// NewParser creates a new Parser that confines manifests and their includes to the build context.
func NewParser(resolver ports.ContextResolver) *Parser {
	return &Parser{resolver: resolver}
}

// Parse reads the manifest at rel inside root, following -r includes.
func (p *Parser) Parse(root, rel string) (*domain.Manifest, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Join(domain.Tagged(domain.ErrManifestNotFound, "manifest", rel), err)
	}

	st := &parseState{
		root:    absRoot,
		seen:    make(map[string]bool),
		byName:  make(map[string]int),
		resolve: p.resolver.Resolve,
	}
	if err := st.parseFile(rel, ""); err != nil {
		return nil, err
	}

	return &domain.Manifest{Files: st.files, Requirements: st.reqs}, nil
}

type parseState struct {
	root    string
	seen    map[string]bool
	byName  map[string]int
	files   []domain.ManifestFile
	reqs    []domain.Requirement
	resolve func(root, rel string) (string, error)
}

func (st *parseState) parseFile(rel, includedBy string) error {
	abs, err := st.resolve(st.root, rel)
	if err != nil {
		return errors.Join(notFound(rel, includedBy), err)
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return errors.Join(notFound(rel, includedBy), err)
	}

	ctxRel, err := filepath.Rel(st.root, abs)
	if err != nil {
		return errors.Join(notFound(rel, includedBy), err)
	}
	ctxRel = filepath.ToSlash(ctxRel)
	if st.seen[ctxRel] {
		return nil
	}
	st.seen[ctxRel] = true

	// #nosec G304 -- abs is confined to the build context by the resolver
	content, err := os.ReadFile(abs)
	if err != nil {
		return errors.Join(notFound(rel, includedBy), err)
	}
	st.files = append(st.files, domain.ManifestFile{Path: ctxRel, Content: content})

	for _, line := range logicalLines(string(content)) {
		if include, ok := includeTarget(line.text); ok {
			if include == "" {
				return parseError(ctxRel, line, "missing include path")
			}
			target := path.Join(path.Dir(ctxRel), filepath.ToSlash(include))
			if err := st.parseFile(filepath.FromSlash(target), ctxRel); err != nil {
				return err
			}
			continue
		}

		// Index and install options do not change what gets installed from a local index.
		if strings.HasPrefix(line.text, "-") {
			continue
		}

		req, reason := parseRequirement(line.text)
		if reason != "" {
			return parseError(ctxRel, line, reason)
		}
		req.Line = line.number
		st.add(req)
	}

	return nil
}

// add records req, merging constraints and extras into an earlier requirement of the same package.
func (st *parseState) add(req domain.Requirement) {
	i, ok := st.byName[req.Name.String()]
	if !ok {
		st.byName[req.Name.String()] = len(st.reqs)
		st.reqs = append(st.reqs, req)
		return
	}

	prev := &st.reqs[i]
	prev.Constraints = append(prev.Constraints, req.Constraints...)
	for _, extra := range req.Extras {
		if !slices.Contains(prev.Extras, extra) {
			prev.Extras = append(prev.Extras, extra)
		}
	}
}

type logicalLine struct {
	number int
	raw    string
	text   string
}

// logicalLines joins backslash continuations and strips comments and surrounding blanks.
func logicalLines(content string) []logicalLine {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	physical := strings.Split(content, "\n")

	var out []logicalLine
	for i := 0; i < len(physical); i++ {
		start := i
		var b strings.Builder
		line := physical[i]
		for strings.HasSuffix(line, `\`) && i+1 < len(physical) {
			b.WriteString(strings.TrimSuffix(line, `\`))
			i++
			line = physical[i]
		}
		b.WriteString(strings.TrimSuffix(line, `\`))

		raw := b.String()
		text := strings.TrimSpace(commentRegex.ReplaceAllString(raw, ""))
		if text == "" {
			continue
		}
		out = append(out, logicalLine{number: start + 1, raw: strings.TrimSpace(raw), text: text})
	}
	return out
}

// includeTarget reports whether line is a -r/--requirement include and returns its path.
func includeTarget(line string) (string, bool) {
	for _, flag := range includeFlags {
		rest, ok := strings.CutPrefix(line, flag)
		if !ok {
			continue
		}
		switch {
		case rest == "":
			return "", true
		case strings.HasPrefix(rest, "="):
			return strings.TrimSpace(rest[1:]), true
		case rest[0] == ' ' || rest[0] == '\t':
			return strings.TrimSpace(rest), true
		case flag == "-r":
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// parseRequirement parses "name[extras] specifiers ; marker". A non-empty reason reports a malformed line.
func parseRequirement(line string) (domain.Requirement, string) {
	var req domain.Requirement

	spec, marker, _ := strings.Cut(line, ";")
	req.Marker = strings.TrimSpace(marker)
	spec = strings.TrimSpace(spec)

	if strings.Contains(spec, "@") || strings.Contains(spec, "://") {
		return req, "direct references are not supported"
	}

	m := requirementRegex.FindStringSubmatch(spec)
	if m == nil {
		return req, "invalid package name"
	}
	req.Name = domain.NewPackageName(m[1])

	if m[2] != "" {
		extras, ok := parseExtras(m[2])
		if !ok {
			return req, "invalid extras"
		}
		req.Extras = extras
	}

	constraints, reason := parseSpecifiers(m[3])
	if reason != "" {
		return req, reason
	}
	req.Constraints = constraints

	return req, ""
}

func parseExtras(list string) ([]string, bool) {
	var extras []string
	for _, e := range strings.Split(list, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !extraRegex.MatchString(e) {
			return nil, false
		}
		extras = append(extras, domain.NormalizePackageName(e))
	}
	return extras, true
}

func parseSpecifiers(list string) ([]domain.Constraint, string) {
	list = strings.TrimSpace(list)
	if strings.HasPrefix(list, "(") {
		if !strings.HasSuffix(list, ")") {
			return nil, "unbalanced parentheses"
		}
		list = strings.TrimSpace(list[1 : len(list)-1])
	}
	if list == "" {
		return nil, ""
	}

	var constraints []domain.Constraint
	for _, part := range strings.Split(list, ",") {
		m := specifierRegex.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, "invalid version specifier"
		}
		op := domain.ConstraintOp(m[1])
		if strings.Contains(m[2], "*") && op != domain.OpEqual && op != domain.OpNotEqual {
			return nil, "wildcard versions require == or !="
		}
		if strings.Contains(m[2], "*") && !strings.HasSuffix(m[2], ".*") {
			return nil, "invalid wildcard version"
		}
		constraints = append(constraints, domain.Constraint{Op: op, Version: m[2]})
	}
	return constraints, ""
}

func notFound(rel, includedBy string) error {
	if includedBy == "" {
		return domain.Tagged(domain.ErrManifestNotFound, "manifest", rel)
	}
	return domain.Tagged(domain.ErrManifestNotFound, "manifest", rel, "included_by", includedBy)
}

func parseError(file string, line logicalLine, reason string) error {
	return errors.Join(
		domain.ErrDependencyResolution,
		domain.Tagged(domain.ErrManifestParse, "manifest", file, "line", line.number, "reason", reason, "text", line.raw),
	)
}
