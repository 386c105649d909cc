package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-gallery/internal/embedding"
)

// vectorEntry is one embedding in a JSON or YAML input file.
type vectorEntry struct {
	Identity string    `json:"identity" yaml:"identity"`
	Values   []float32 `json:"values" yaml:"values"`
	Quality  *float64  `json:"quality,omitempty" yaml:"quality,omitempty"`
	Remarks  string    `json:"remarks,omitempty" yaml:"remarks,omitempty"`
}

func (v vectorEntry) embedding() embedding.Embedding {
	e := embedding.New(v.Identity, v.Values)
	if v.Quality != nil {
		e = e.WithQuality(*v.Quality)
	}
	return e
}

// isVectorFile reports whether path names a JSON or YAML vector file rather than an image.
func isVectorFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// readVectorFile reads a single entry or a list of entries.
func readVectorFile(path string) ([]vectorEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	entries, err := parseVectors(data, strings.ToLower(filepath.Ext(path)) == ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return entries, nil
}

func parseVectors(data []byte, isJSON bool) ([]vectorEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("file is empty")
	}

	if isJSON {
		if trimmed[0] == '[' {
			var entries []vectorEntry
			if err := json.Unmarshal(trimmed, &entries); err != nil {
				return nil, err
			}
			return entries, nil
		}
		var entry vectorEntry
		if err := json.Unmarshal(trimmed, &entry); err != nil {
			return nil, err
		}
		return []vectorEntry{entry}, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(trimmed, &node); err != nil {
		return nil, err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var entries []vectorEntry
		if err := node.Decode(&entries); err != nil {
			return nil, err
		}
		return entries, nil
	}
	var entry vectorEntry
	if err := node.Decode(&entry); err != nil {
		return nil, err
	}
	return []vectorEntry{entry}, nil
}
