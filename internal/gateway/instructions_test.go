package gateway

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLoadInstructions(t *testing.T) {
	dir := t.TempDir()

	promptPath := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(promptPath, []byte("  You are the intake agent for Dr. Chen.\n\n"), 0o644))

	blankPath := filepath.Join(dir, "blank.md")
	require.NoError(t, os.WriteFile(blankPath, []byte("   \n\t\n"), 0o644))

	tests := map[string]struct {
		path       string
		wantPrefix string
	}{
		"no_path_uses_default": {
			path:       "",
			wantPrefix: defaultInstructions,
		},
		"missing_file_uses_default": {
			path:       filepath.Join(dir, "nope.md"),
			wantPrefix: defaultInstructions,
		},
		"blank_file_uses_default": {
			path:       blankPath,
			wantPrefix: defaultInstructions,
		},
		"file_content_trimmed": {
			path:       promptPath,
			wantPrefix: "You are the intake agent for Dr. Chen.",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := loadInstructions(zaptest.NewLogger(t), tt.path)

			assert.True(t, strings.HasPrefix(got, tt.wantPrefix),
				"instructions should start with the expected prompt, got %q", got)
			assert.True(t, strings.HasSuffix(got, conductRules),
				"conduct rules should always be appended")
		})
	}
}

func TestLoadInstructions_ConductRules(t *testing.T) {
	got := loadInstructions(zaptest.NewLogger(t), "")

	assert.Contains(t, got, "save_observation")
	assert.Contains(t, got, "finalize_soap")
	assert.Contains(t, got, "physician review")
}

func TestSnapshotMessage(t *testing.T) {
	snapshot := map[string]any{
		"age":        float64(44),
		"allergies":  "penicillin",
		"complaints": []any{"headache", "nausea"},
	}

	t.Run("with_patient_id", func(t *testing.T) {
		got := snapshotMessage("sess-1", "patient-42", snapshot)

		assert.True(t, strings.HasPrefix(got, "Patient Snapshot (patient patient-42):"))
		assert.Contains(t, got, `"allergies": "penicillin"`)
		assert.Contains(t, got, "headache")
	})

	t.Run("without_patient_id", func(t *testing.T) {
		got := snapshotMessage("sess-1", "", snapshot)

		assert.True(t, strings.HasPrefix(got, "Patient Snapshot (session sess-1):"))
	})
}
