package models

import (
	"fmt"
	"strconv"
)

const (
	DefaultExportFormat    = "png"
	DefaultResolutionMode  = "multiplier"
	DefaultResolutionValue = 2
	DefaultModelName       = "eugenesiow/edsr-base"
	DefaultOutputDir       = "images/output"
)

var (
	exportFormats   = map[string]bool{"png": true, "jpg": true, "jpeg": true, "webp": true, "bmp": true}
	resolutionModes = map[string]bool{"multiplier": true, "absolute": true}
)

// ServerConfig is the body of GET /config. Every field is optional.
type ServerConfig struct {
	ExportFormat    string  `json:"export_format,omitempty"`
	ResolutionMode  string  `json:"resolution_mode,omitempty"`
	ResolutionValue float64 `json:"resolution_value,omitempty"`
	ModelName       string  `json:"model_name,omitempty"`
	ExportPath      string  `json:"export_path,omitempty"`
}

// DefaultOutputDir is the directory the service writes to when a
// submission leaves output_directory empty.
func (c ServerConfig) DefaultOutputDir() string {
	if c.ExportPath != "" {
		return c.ExportPath
	}
	return DefaultOutputDir
}

type SubmissionSettings struct {
	ExportFormat    string  `json:"export_format"`
	ResolutionMode  string  `json:"resolution_mode"`
	ResolutionValue float64 `json:"resolution_value"`
	ModelName       string  `json:"model_name"`
	OutputDirectory string  `json:"output_directory,omitempty"`
}

// DefaultSettings fills the submission form from the service config,
// falling back to the documented defaults for anything missing.
func DefaultSettings(cfg ServerConfig) SubmissionSettings {
	s := SubmissionSettings{
		ExportFormat:    cfg.ExportFormat,
		ResolutionMode:  cfg.ResolutionMode,
		ResolutionValue: cfg.ResolutionValue,
		ModelName:       cfg.ModelName,
	}
	if s.ExportFormat == "" {
		s.ExportFormat = DefaultExportFormat
	}
	if s.ResolutionMode == "" {
		s.ResolutionMode = DefaultResolutionMode
	}
	if s.ResolutionValue == 0 {
		s.ResolutionValue = DefaultResolutionValue
	}
	if s.ModelName == "" {
		s.ModelName = DefaultModelName
	}
	return s
}

func (s SubmissionSettings) Validate() error {
	if !exportFormats[s.ExportFormat] {
		return fmt.Errorf("unsupported export format %q", s.ExportFormat)
	}
	if !resolutionModes[s.ResolutionMode] {
		return fmt.Errorf("unsupported resolution mode %q", s.ResolutionMode)
	}
	if s.ResolutionValue <= 0 {
		return fmt.Errorf("resolution value must be positive, got %v", s.ResolutionValue)
	}
	if s.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	return nil
}

// Form returns the multipart fields the service reads the settings from.
func (s SubmissionSettings) Form() map[string]string {
	return map[string]string{
		"export_format":    s.ExportFormat,
		"resolution_mode":  s.ResolutionMode,
		"resolution_value": strconv.FormatFloat(s.ResolutionValue, 'f', -1, 64),
		"model_name":       s.ModelName,
		"output_directory": s.OutputDirectory,
	}
}
