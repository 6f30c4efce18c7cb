package hospital

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDirectory = `
archives:
  - hospital_id: 9b2f7c1e-3c1d-4b7a-9a53-0d1f6c1e2a10
    hospital_name: General Hospital
    host: pacs.general.local
    port: 8042
    username: orthanc
    password: ${TEST_ORTHANC_PASSWORD}
  - hospital_id: 1c7e0d4a-8f0e-4c55-b2b7-3a6f1d2e9c01
    hospital_name: Children's Clinic
    host: https://pacs.children.example
    port: 443
`

func TestParseFileDirectory(t *testing.T) {
	t.Setenv("TEST_ORTHANC_PASSWORD", "s3cret")

	d, err := ParseFileDirectory([]byte(sampleDirectory))
	require.NoError(t, err)

	archives, err := d.Archives(context.Background())
	require.NoError(t, err)
	require.Len(t, archives, 2)

	assert.Equal(t, "General Hospital", archives[0].HospitalName)
	assert.Equal(t, "http://pacs.general.local:8042", archives[0].Target.BaseURL)
	assert.Equal(t, "orthanc", archives[0].Target.Username)
	assert.Equal(t, "s3cret", archives[0].Target.Password)
	assert.Equal(t, "https://pacs.children.example:443", archives[1].Target.BaseURL)

	arch, ok, err := d.Resolve(context.Background(), uuid.MustParse("1c7e0d4a-8f0e-4c55-b2b7-3a6f1d2e9c01"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Children's Clinic", arch.HospitalName)

	_, ok, err = d.Resolve(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseFileDirectory_Empty(t *testing.T) {
	d, err := ParseFileDirectory([]byte("archives: []\n"))
	require.NoError(t, err)

	archives, err := d.Archives(context.Background())
	require.NoError(t, err)
	assert.Empty(t, archives)
}

func TestParseFileDirectory_Invalid(t *testing.T) {
	tests := map[string]string{
		"not yaml":       "archives: [",
		"missing id":     "archives:\n  - host: pacs\n    port: 8042\n",
		"bad id":         "archives:\n  - hospital_id: nope\n    host: pacs\n    port: 8042\n",
		"missing host":   "archives:\n  - hospital_id: 9b2f7c1e-3c1d-4b7a-9a53-0d1f6c1e2a10\n    port: 8042\n",
		"port too large": "archives:\n  - hospital_id: 9b2f7c1e-3c1d-4b7a-9a53-0d1f6c1e2a10\n    host: pacs\n    port: 70000\n",
		"duplicate id": "archives:\n" +
			"  - {hospital_id: 9b2f7c1e-3c1d-4b7a-9a53-0d1f6c1e2a10, host: a, port: 1}\n" +
			"  - {hospital_id: 9b2f7c1e-3c1d-4b7a-9a53-0d1f6c1e2a10, host: b, port: 2}\n",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFileDirectory([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archives.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDirectory), 0o600))

	d, err := LoadFileDirectory(path)
	require.NoError(t, err)
	archives, _ := d.Archives(context.Background())
	assert.Len(t, archives, 2)

	_, err = LoadFileDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFileDirectory_ArchivesReturnsCopy(t *testing.T) {
	d, err := ParseFileDirectory([]byte(sampleDirectory))
	require.NoError(t, err)

	first, _ := d.Archives(context.Background())
	first[0].HospitalName = "mutated"

	second, _ := d.Archives(context.Background())
	assert.Equal(t, "General Hospital", second[0].HospitalName)
}
