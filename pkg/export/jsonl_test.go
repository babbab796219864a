package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLWriter_OneRecordPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.jsonl")

	w, err := NewJSONLWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]string{"id": "a"}))
	require.NoError(t, w.Write(map[string]string{"id": "b"}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.JSONEq(t, `{"id":"a"}`, lines[0])
	assert.JSONEq(t, `{"id":"b"}`, lines[1])
}

func TestJSONLWriter_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")

	for _, id := range []string{"a", "b"} {
		w, err := NewJSONLWriter(path)
		require.NoError(t, err)
		require.NoError(t, w.Write(map[string]string{"id": id}))
		require.NoError(t, w.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}

func TestReadJSONL_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	content := `{"id":"a"}
not json at all
{"id":"b"}

{"id":"c"`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var ids []string
	skipped, err := ReadJSONL(path, func(line json.RawMessage) error {
		var rec struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(line, &rec))
		ids = append(ids, rec.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.Equal(t, 2, skipped)
}

func TestReadJSONL_MissingFile(t *testing.T) {
	_, err := ReadJSONL(filepath.Join(t.TempDir(), "absent.jsonl"), func(json.RawMessage) error {
		return nil
	})
	assert.Error(t, err)
}
