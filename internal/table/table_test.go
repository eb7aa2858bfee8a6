package table

import (
	"bytes"
	"testing"

	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JWST-Templates/Notebooks/internal/mast"
)

func testProducts() []mast.Product {
	return []mast.Product{
		{ObsID: "1001", ProductFilename: "a_uncal.fits", ProductType: "SCIENCE", ProductSubGroupDescription: "UNCAL", DataURI: "mast:JWST/product/a_uncal.fits", Description: "exposure/raw", Size: 100},
		{ObsID: "1001", ProductFilename: "a_rate.fits", ProductType: "SCIENCE", ProductSubGroupDescription: "RATE", DataURI: "mast:JWST/product/a_rate.fits", Size: 50},
		{ObsID: "1002", ProductFilename: "preview.jpg", ProductType: "PREVIEW", DataURI: "mast:JWST/product/preview.jpg"},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(testProducts(), mast.Filter{ProductTypes: []string{"SCIENCE"}, SubGroup: "UNCAL"})
	require.Len(t, rows, 3)
	assert.True(t, rows[0].Selected)
	assert.False(t, rows[1].Selected)
	assert.False(t, rows[2].Selected)
}

func TestBuild(t *testing.T) {
	pool := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer pool.AssertSize(t, 0)

	rec := Build(pool, Rows(testProducts(), mast.Filter{}))
	defer rec.Release()

	assert.Equal(t, int64(3), rec.NumRows())
	assert.Equal(t, int64(8), rec.NumCols())
	assert.True(t, rec.Schema().Equal(ProductSchema))
	assert.Equal(t, 1, rec.Column(3).NullN())
	assert.Equal(t, 2, rec.Column(5).NullN())
}

func TestWriteRead(t *testing.T) {
	rows := Rows(testProducts(), mast.Filter{ProductTypes: []string{"SCIENCE"}})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rows))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadGarbage(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte("not arrow")))
	assert.Error(t, err)
}
