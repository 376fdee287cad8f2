// Package files classifies the files found next to a checkpoint, so the
// extractor knows which ones travel with the extracted weights.
package files

import (
	"path/filepath"
	"strings"
)

// FileType is the role a file plays in a checkpoint directory.
type FileType int

const (
	// FileTypeUnknown is an unrecognized file.
	FileTypeUnknown FileType = iota
	// FileTypeSafetensors is a safetensors weights file or shard.
	FileTypeSafetensors
	// FileTypeIndex is a safetensors weight index.
	FileTypeIndex
	// FileTypeTokenizer is a tokenizer definition or vocabulary.
	FileTypeTokenizer
	// FileTypeConfig is a JSON or text configuration file.
	FileTypeConfig
	// FileTypeLicense is a license or notice file.
	FileTypeLicense
	// FileTypeChatTemplate is a Jinja chat template.
	FileTypeChatTemplate
)

// String returns a string representation of the file type
func (ft FileType) String() string {
	switch ft {
	case FileTypeSafetensors:
		return "safetensors"
	case FileTypeIndex:
		return "index"
	case FileTypeTokenizer:
		return "tokenizer"
	case FileTypeConfig:
		return "config"
	case FileTypeLicense:
		return "license"
	case FileTypeChatTemplate:
		return "chat_template"
	case FileTypeUnknown:
		return "unknown"
	}
	return "unknown"
}

// Auxiliary reports whether files of this type are copied alongside the
// extracted weights. Weights and indexes are always regenerated.
func (ft FileType) Auxiliary() bool {
	switch ft {
	case FileTypeTokenizer, FileTypeConfig, FileTypeLicense, FileTypeChatTemplate:
		return true
	}
	return false
}

var (
	// IndexSuffix identifies weight index files.
	IndexSuffix = ".safetensors.index.json"

	// ConfigExtensions are treated as config files.
	ConfigExtensions = []string{".md", ".txt", ".json", ".yaml"}

	// TokenizerFiles are tokenizer definitions matched by exact name.
	TokenizerFiles = []string{"tokenizer.json", "tokenizer.model", "vocab.json", "merges.txt"}

	// ChatTemplateExtensions defines extensions for chat template files
	ChatTemplateExtensions = []string{".jinja"}

	// LicensePatterns defines patterns for license files (case-insensitive)
	LicensePatterns = []string{"license", "licence", "copying", "notice"}
)

// Classify determines the file type from the file name alone.
func Classify(path string) FileType {
	lower := strings.ToLower(filepath.Base(path))

	switch {
	case lower == "":
		return FileTypeUnknown
	case strings.HasSuffix(lower, IndexSuffix):
		return FileTypeIndex
	case strings.HasSuffix(lower, ".safetensors"):
		return FileTypeSafetensors
	}

	for _, name := range TokenizerFiles {
		if lower == name {
			return FileTypeTokenizer
		}
	}
	if strings.HasSuffix(lower, ".vocab") {
		return FileTypeTokenizer
	}

	// Before the generic config check: chat_template.json is a template.
	for _, ext := range ChatTemplateExtensions {
		if strings.HasSuffix(lower, ext) {
			return FileTypeChatTemplate
		}
	}
	if strings.Contains(lower, "chat_template") {
		return FileTypeChatTemplate
	}

	for _, pattern := range LicensePatterns {
		if strings.Contains(lower, pattern) {
			return FileTypeLicense
		}
	}

	for _, ext := range ConfigExtensions {
		if strings.HasSuffix(lower, ext) {
			return FileTypeConfig
		}
	}
	return FileTypeUnknown
}
