package jobs

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lgulliver/docdesk/internal/common"
)

var fieldPattern = regexp.MustCompile(`^file-(\d{1,4})$`)

// FileRef names one input of a job. Field is the form field the client used
// ("file-0", "file-1", ...); when empty, Position in the submitted list
// decides the order.
type FileRef struct {
	Field    string
	FileID   string
	Position int
}

// OrderFiles returns the file ids in the order the client intended: by the
// index embedded in the field name, or by list position. Malformed field
// names, repeated indexes and repeated files are rejected.
func OrderFiles(refs []FileRef) ([]string, error) {
	type indexed struct {
		index  int
		fileID string
	}

	items := make([]indexed, 0, len(refs))
	seenIndex := make(map[int]bool, len(refs))
	seenFile := make(map[string]bool, len(refs))

	for _, ref := range refs {
		index := ref.Position
		if ref.Field != "" {
			m := fieldPattern.FindStringSubmatch(ref.Field)
			if m == nil {
				return nil, common.Validation(fmt.Sprintf("malformed file field %q", ref.Field))
			}
			index, _ = strconv.Atoi(m[1])
		}
		if ref.FileID == "" {
			return nil, common.Validation(fmt.Sprintf("empty file id at position %d", index))
		}
		if seenIndex[index] {
			return nil, common.Validation(fmt.Sprintf("file position %d given twice", index))
		}
		if seenFile[ref.FileID] {
			return nil, common.Validation(fmt.Sprintf("file %s listed twice", ref.FileID))
		}
		seenIndex[index] = true
		seenFile[ref.FileID] = true
		items = append(items, indexed{index: index, fileID: ref.FileID})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].index < items[j].index })

	ordered := make([]string, len(items))
	for i, item := range items {
		ordered[i] = item.fileID
	}
	return ordered, nil
}

// FromList builds refs for a JSON array of file ids
func FromList(fileIDs []string) []FileRef {
	refs := make([]FileRef, len(fileIDs))
	for i, id := range fileIDs {
		refs[i] = FileRef{FileID: id, Position: i}
	}
	return refs
}

// FromForm builds refs from execute form fields. Explicit file-N fields keep
// their index; ids listed under "files" follow the highest explicit index in
// the order they were sent. Other fields starting with "file" are kept so that
// OrderFiles rejects them.
func FromForm(form map[string][]string) []FileRef {
	fields := make([]string, 0, len(form))
	for field := range form {
		if field != "files" && strings.HasPrefix(field, "file") {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	var refs []FileRef
	next := 0
	for _, field := range fields {
		if m := fieldPattern.FindStringSubmatch(field); m != nil {
			if index, _ := strconv.Atoi(m[1]); index >= next {
				next = index + 1
			}
		}
		for _, id := range form[field] {
			refs = append(refs, FileRef{Field: field, FileID: id})
		}
	}

	for i, id := range form["files"] {
		refs = append(refs, FileRef{FileID: id, Position: next + i})
	}
	return refs
}
