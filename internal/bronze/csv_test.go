package bronze

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMapsColumns(t *testing.T) {
	csv := strings.Join([]string{
		"INCIDENT_DT,INCIDENT_COUNTY,INJURY_FLG,IGNORED_COLUMN",
		"2024-03-15 14:30:00,BUTLER,Y,whatever",
		"2024-03-16,WARREN,N,x",
	}, "\n")

	records, err := Read(strings.NewReader(csv), "extract.csv", "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "run-1", records[0].RunID)
	assert.Equal(t, "extract.csv", records[0].FileName)
	assert.Equal(t, int64(1), records[0].SourceRowNum)
	assert.Equal(t, "2024-03-15 14:30:00", records[0].IncidentDT)
	assert.Equal(t, "BUTLER", records[0].IncidentCounty)
	assert.Equal(t, "Y", records[0].InjuryFlg)

	assert.Equal(t, int64(2), records[1].SourceRowNum)
	assert.Equal(t, "WARREN", records[1].IncidentCounty)

	// Columns absent from the file stay empty.
	assert.Empty(t, records[0].PrimarySymptom)
}

func TestReadHeaderCaseInsensitive(t *testing.T) {
	csv := "incident_county, Injury_Flg \nBUTLER,Y\n"

	records, err := Read(strings.NewReader(csv), "extract.csv", "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "BUTLER", records[0].IncidentCounty)
	assert.Equal(t, "Y", records[0].InjuryFlg)
}

func TestReadEmptyFile(t *testing.T) {
	_, err := Read(strings.NewReader(""), "extract.csv", "run-1")
	assert.Error(t, err)
}

func TestReadHeaderOnly(t *testing.T) {
	records, err := Read(strings.NewReader("INCIDENT_COUNTY\n"), "extract.csv", "run-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ems_extract.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("INCIDENT_COUNTY,NALOXONE_GIVEN_FLG\nBUTLER,1\n"), 0644))

	records, err := ReadCSV(path, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ems_extract.csv", records[0].FileName)
	assert.Equal(t, "1", records[0].NaloxoneGivenFlg)
}

func TestReadCSVMissingFile(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "nope.csv"), "run-1")
	assert.Error(t, err)
}
