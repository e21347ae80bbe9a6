package domain

import "testing"

func TestStageTypeAndProvider(t *testing.T) {
	cases := []struct {
		stage    string
		wantType string
		wantProv string
	}{
		{"render", "render", ""},
		{"ocr:tesseract", "ocr", "tesseract"},
		{"detect:yolov8", "detect", "yolov8"},
		{"layout:layoutlmv3", "layout", "layoutlmv3"},
		{"vlm:gpt-4o:title_block", "vlm", "gpt-4o"},
		{"", "", ""},
	}
	for _, tc := range cases {
		if got := StageType(tc.stage); got != tc.wantType {
			t.Errorf("StageType(%q) = %q, want %q", tc.stage, got, tc.wantType)
		}
		if got := StageProvider(tc.stage); got != tc.wantProv {
			t.Errorf("StageProvider(%q) = %q, want %q", tc.stage, got, tc.wantProv)
		}
	}
}

func TestSanitizeStage(t *testing.T) {
	if got := SanitizeStage("vlm:gpt-4o:title_block"); got != "vlm_gpt-4o_title_block" {
		t.Fatalf("SanitizeStage() = %q", got)
	}
	if got := SanitizeStage("render"); got != "render" {
		t.Fatalf("SanitizeStage() = %q", got)
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if StatusRunning.Terminal() {
		t.Fatal("running must not be terminal")
	}
	if !StatusCompleted.Terminal() || !StatusFailed.Terminal() {
		t.Fatal("completed and failed must be terminal")
	}
}

func TestErrorfKeepsBareMessage(t *testing.T) {
	err := Errorf(ErrConfiguration, "Unknown OCR provider '%s'.", "bogus")
	if err.Error() != "Unknown OCR provider 'bogus'." {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !IsKind(err, ErrConfiguration) {
		t.Fatal("expected configuration kind")
	}
	if IsKind(err, ErrDependency) {
		t.Fatal("unexpected dependency kind")
	}
}
