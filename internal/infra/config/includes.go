package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// fragment is the shape of an included file. Only the sections that
// describe protocol behavior may be split out; process-wide settings
// (logger, tracer, metrics) live in the main file. The section pointers
// alias the Config being built, so a fragment that sets one field of a
// section keeps the others.
type fragment struct {
	Includes   []string          `yaml:"includes"`
	Pagination *PaginationConfig `yaml:"pagination"`
	Reducer    *ReducerConfig    `yaml:"reducer"`
	Stream     *StreamConfig     `yaml:"stream"`
	Actions    *ActionsConfig    `yaml:"actions"`
	Dispatch   *DispatchConfig   `yaml:"dispatch"`
}

// includeSet collects included files in the order they apply. Every file
// must live under root, the directory of the main config file.
type includeSet struct {
	root  string
	seen  map[string]bool
	files []string
}

// loadFragments applies the files named by cfg.Includes, and the files
// they include, onto cfg. main is the absolute path of the main file.
func loadFragments(cfg *Config, main string) error {
	set := &includeSet{root: filepath.Dir(main), seen: map[string]bool{main: true}}
	if err := set.add(cfg.Includes, set.root, 0); err != nil {
		return err
	}
	cfg.Includes = nil
	for _, path := range set.files {
		if err := applyFragment(cfg, path); err != nil {
			return err
		}
	}
	return nil
}

// add resolves patterns relative to dir and records each match before
// the files it includes, so later files override earlier ones.
func (s *includeSet) add(patterns []string, dir string, depth int) error {
	if depth >= maxIncludeDepth {
		return fmt.Errorf("config includes: deeper than %d levels", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		paths, err := s.resolve(pattern, dir)
		if err != nil {
			return err
		}
		for _, path := range paths {
			if s.seen[path] {
				return fmt.Errorf("config includes: circular include detected for %q", path)
			}
			s.seen[path] = true
			s.files = append(s.files, path)

			nested, err := peekIncludes(path)
			if err != nil {
				return err
			}
			if err := s.add(nested, filepath.Dir(path), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolve expands one pattern. A glob that matches nothing is not an
// error; a literal path is returned as is and reported when read.
func (s *includeSet) resolve(pattern, dir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)
	if rel, err := filepath.Rel(s.root, pattern); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("config includes: path %q escapes config directory", pattern)
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	return matches, nil
}

func readFragment(path string) ([]byte, error) {
	if err := validatePermissions(path); err != nil {
		return nil, fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config includes: read %q: %w", path, err)
	}
	return data, nil
}

func peekIncludes(path string) ([]string, error) {
	data, err := readFragment(path)
	if err != nil {
		return nil, err
	}
	var f struct {
		Includes []string `yaml:"includes"`
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	return f.Includes, nil
}

// applyFragment decodes path strictly: an unknown key, or a section that
// may not be included, fails the load.
func applyFragment(cfg *Config, path string) error {
	data, err := readFragment(path)
	if err != nil {
		return err
	}
	f := fragment{
		Pagination: &cfg.Pagination,
		Reducer:    &cfg.Reducer,
		Stream:     &cfg.Stream,
		Actions:    &cfg.Actions,
		Dispatch:   &cfg.Dispatch,
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config includes: %q: %w", path, err)
	}
	return nil
}
