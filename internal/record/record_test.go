package record

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{1600, "1600"},
		{0, "0"},
		{2.5, "2.5"},
		{123456, "123456"},
		{1234567, "1.23457e+06"},
		{0.1, "0.1"},
		{1.0 / 3, "0.333333"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.in), "FormatNumber(%v)", tt.in)
	}
}

func TestAppendCreatesAndAppends(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := New(fs, "/out")

	require.NoError(t, r.Append("R", time.Second, 1600))
	require.NoError(t, r.Append("R", 2*time.Second, 800))
	require.NoError(t, r.Append("other", 500*time.Millisecond, 0))

	data, err := afero.ReadFile(fs, "/out/P-R")
	require.NoError(t, err)
	assert.Equal(t, "1\t1600\n2\t800\n", string(data))

	data, err = afero.ReadFile(fs, r.Path("other"))
	require.NoError(t, err)
	assert.Equal(t, "0.5\t0\n", string(data))
}

func TestAppendNeverTruncates(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "P-R", []byte("0\t0\n"), 0o644))

	r := New(fs, "")
	require.NoError(t, r.Append("R", time.Second, 8))

	data, err := afero.ReadFile(fs, "P-R")
	require.NoError(t, err)
	assert.Equal(t, "0\t0\n1\t8\n", string(data))
}

func TestAppendReadOnlyFs(t *testing.T) {
	r := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/out")
	assert.Error(t, r.Append("R", time.Second, 1))
}
