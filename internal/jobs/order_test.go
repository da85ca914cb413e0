package jobs

import (
	"testing"

	"github.com/lgulliver/docdesk/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderFiles(t *testing.T) {
	tests := []struct {
		name     string
		refs     []FileRef
		expected []string
		wantErr  string
	}{
		{
			name:     "list position",
			refs:     FromList([]string{"f2", "f0", "f1"}),
			expected: []string{"f2", "f0", "f1"},
		},
		{
			name: "field index wins over arrival order",
			refs: []FileRef{
				{Field: "file-2", FileID: "c"},
				{Field: "file-0", FileID: "a"},
				{Field: "file-1", FileID: "b"},
			},
			expected: []string{"a", "b", "c"},
		},
		{
			name: "numeric not lexical",
			refs: []FileRef{
				{Field: "file-10", FileID: "k"},
				{Field: "file-9", FileID: "j"},
			},
			expected: []string{"j", "k"},
		},
		{
			name: "gaps are allowed",
			refs: []FileRef{
				{Field: "file-5", FileID: "b"},
				{Field: "file-1", FileID: "a"},
			},
			expected: []string{"a", "b"},
		},
		{
			name:    "malformed field",
			refs:    []FileRef{{Field: "upload", FileID: "a"}},
			wantErr: "malformed file field",
		},
		{
			name:    "negative index",
			refs:    []FileRef{{Field: "file--1", FileID: "a"}},
			wantErr: "malformed file field",
		},
		{
			name: "duplicate index",
			refs: []FileRef{
				{Field: "file-0", FileID: "a"},
				{Field: "file-0", FileID: "b"},
			},
			wantErr: "given twice",
		},
		{
			name:    "duplicate file",
			refs:    FromList([]string{"a", "a"}),
			wantErr: "listed twice",
		},
		{
			name:    "empty id",
			refs:    FromList([]string{""}),
			wantErr: "empty file id",
		},
		{
			name:     "empty list",
			refs:     nil,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OrderFiles(tt.refs)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, common.IsKind(err, common.KindValidation))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFromForm(t *testing.T) {
	tests := []struct {
		name     string
		form     map[string][]string
		expected []string
		wantErr  string
	}{
		{
			name:     "files list only",
			form:     map[string][]string{"files": {"b", "a"}, "tool": {"merge"}},
			expected: []string{"b", "a"},
		},
		{
			name:     "indexed fields only",
			form:     map[string][]string{"file-1": {"b"}, "file-0": {"a"}},
			expected: []string{"a", "b"},
		},
		{
			name:     "list follows the highest index",
			form:     map[string][]string{"files": {"a", "b"}, "file-2": {"c"}},
			expected: []string{"c", "a", "b"},
		},
		{
			name:     "list follows sparse indexes",
			form:     map[string][]string{"files": {"z"}, "file-0": {"x"}, "file-7": {"y"}},
			expected: []string{"x", "y", "z"},
		},
		{
			name:    "unknown file field",
			form:    map[string][]string{"files": {"a"}, "fileX": {"b"}},
			wantErr: "malformed file field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// map iteration order varies, so every run must agree
			for i := 0; i < 20; i++ {
				got, err := OrderFiles(FromForm(tt.form))
				if tt.wantErr != "" {
					require.Error(t, err)
					assert.Contains(t, err.Error(), tt.wantErr)
					continue
				}
				require.NoError(t, err)
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}
