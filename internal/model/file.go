package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadExamFile reads an exam saved by SaveExamFile. The format follows the
// extension: .yaml/.yml is YAML, anything else JSON.
func LoadExamFile(path string) (Exam, error) {
	var exam Exam
	data, err := os.ReadFile(path)
	if err != nil {
		return exam, fmt.Errorf("read exam file: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, &exam)
	} else {
		err = json.Unmarshal(data, &exam)
	}
	if err != nil {
		return exam, fmt.Errorf("parse exam file %s: %w", path, err)
	}
	if err := exam.Validate(); err != nil {
		return exam, fmt.Errorf("exam file %s: %w", path, err)
	}
	return exam, nil
}

// SaveExamFile writes exam to path as JSON or YAML depending on the extension.
func SaveExamFile(path string, exam Exam) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(exam)
	} else {
		data, err = json.MarshalIndent(exam, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("marshal exam: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write exam file: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// SafeFileName turns a title into a file name: path separators and control
// characters are replaced and an empty result becomes fallback.
func SafeFileName(title, fallback, ext string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = fallback
	}
	return name + ext
}
