package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"sequence", "decision", "this_hash"},
		Rows: []map[string]string{
			{"sequence": "0", "decision": "approved", "this_hash": "ab12"},
			{"sequence": "1", "decision": "rejected"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "sequence,decision,this_hash\n0,approved,ab12\n1,rejected,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	err := NewCSVExporter().RenderTo(&bytes.Buffer{}, Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter("verified ledger export").Render(sampleDataset(), "audit trail")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 90))
	long := "0123456789012345678901234567890123456789012345678901234567890123"
	got := truncate(long, 36)
	assert.Len(t, got, 18)
	assert.Equal(t, "...", got[len(got)-3:])
}
