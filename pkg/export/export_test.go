package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Language report",
		Headers: []string{"submission_id", "language", "video_status"},
		Rows: []map[string]string{
			{"submission_id": "s-1", "language": "hi", "video_status": "completed"},
			{"submission_id": "s-1", "language": "ta"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "submission_id,language,video_status", lines[0])
	assert.Equal(t, "s-1,ta,", lines[2])
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := f.GetRows("Submissions")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"submission_id", "language", "video_status"}, rows[0])
	assert.Equal(t, "completed", rows[1][2])
}

func TestRenderersRequireHeaders(t *testing.T) {
	for _, format := range []string{FormatCSV, FormatPDF, FormatXLSX} {
		r, err := ForFormat(format)
		require.NoError(t, err)
		_, err = r.Render(Dataset{})
		assert.Error(t, err, format)
	}
	_, err := ForFormat("docx")
	assert.Error(t, err)
}
