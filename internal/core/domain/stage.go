package domain

import "strings"

// Stage labels are composite strings of the form category[:provider[:sub-key]],
// e.g. "detect:yolov8" or "vlm:qwen2-vl:title_block". The category is the
// grouping key for cross-provider comparison.

// StageType returns the substring before the first colon.
func StageType(stage string) string {
	if idx := strings.Index(stage, ":"); idx >= 0 {
		return stage[:idx]
	}
	return stage
}

// StageProvider returns the second segment of the label, or "" when the label
// has no provider part.
func StageProvider(stage string) string {
	parts := strings.SplitN(stage, ":", 3)
	if len(parts) > 1 {
		return parts[1]
	}
	return ""
}

// SanitizeStage makes a stage label safe for use in a file name.
func SanitizeStage(stage string) string {
	return strings.ReplaceAll(stage, ":", "_")
}
