package jwst

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOfYear(t *testing.T) {
	tests := []struct {
		stamp string
		want  int
	}{
		{"2022-01-07T00:00:00", 7},
		{"2022-01-07T00:00:00.000", 7},
		{"2022-07-12T15:45:36.123456", 193},
		{"2022-12-31T23:59:59", 365},
		{"2024-12-31T12:00:00", 366},
		{"2024-02-29", 60},
		{"2022-01-01T00:00:00Z", 1},
		{"  2022-03-01T08:00:00  ", 60},
	}

	for _, tt := range tests {
		got, err := DayOfYear(tt.stamp)
		require.NoError(t, err, tt.stamp)
		assert.Equal(t, tt.want, got, tt.stamp)
	}
}

func TestDayOfYearOffsetIsUTC(t *testing.T) {
	got, err := DayOfYear("2022-01-08T01:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestDayOfYearInvalid(t *testing.T) {
	for _, stamp := range []string{"", "yesterday", "2022-13-01T00:00:00", "07/01/2022"} {
		_, err := DayOfYear(stamp)
		assert.ErrorIs(t, err, ErrInvalidTimestamp, stamp)
	}
}

func testCards() []fitsio.Card {
	return []fitsio.Card{
		{Name: KeyTargetRA, Value: 260.9018},
		{Name: KeyTargetDec, Value: 34.1994},
		{Name: KeyDateBeg, Value: "2022-07-12T15:45:36.123"},
	}
}

func TestFromHeader(t *testing.T) {
	hdr := fitsio.NewHeader(testCards(), fitsio.IMAGE_HDU, 16, []int{2, 2})

	p, err := FromHeader(hdr)
	require.NoError(t, err)
	assert.InDelta(t, 260.9018, p.RA, 1e-9)
	assert.InDelta(t, 34.1994, p.Dec, 1e-9)
	assert.Equal(t, 193, p.DayOfYear)
}

func TestFromHeaderIntegerDec(t *testing.T) {
	cards := testCards()
	cards[1].Value = -47
	hdr := fitsio.NewHeader(cards, fitsio.IMAGE_HDU, 16, []int{2, 2})

	p, err := FromHeader(hdr)
	require.NoError(t, err)
	assert.Equal(t, -47.0, p.Dec)
}

func TestFromHeaderMissing(t *testing.T) {
	for i, key := range []string{KeyTargetRA, KeyTargetDec, KeyDateBeg} {
		cards := testCards()
		cards = append(cards[:i], cards[i+1:]...)
		hdr := fitsio.NewHeader(cards, fitsio.IMAGE_HDU, 16, []int{2, 2})

		_, err := FromHeader(hdr)
		require.Error(t, err, key)
		assert.True(t, errors.Is(err, ErrMissingKeyword), key)
		assert.Contains(t, err.Error(), key)
	}
}

func writeTestFile(t *testing.T, cards []fitsio.Card) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jw02736001001_02101_00001_nrcb1_cal.fits")

	w, err := os.Create(path)
	require.NoError(t, err)
	defer w.Close()

	fits, err := fitsio.Create(w)
	require.NoError(t, err)

	im := fitsio.NewImage(16, []int{2, 2})
	require.NoError(t, im.Header().Append(cards...))
	require.NoError(t, im.Write([]int16{0, 1, 2, 3}))
	require.NoError(t, fits.Write(im))
	require.NoError(t, im.Close())
	require.NoError(t, fits.Close())
	return path
}

func TestFromFile(t *testing.T) {
	path := writeTestFile(t, testCards())

	p, err := FromFile(path)
	require.NoError(t, err)
	assert.InDelta(t, 260.9018, p.RA, 1e-6)
	assert.InDelta(t, 34.1994, p.Dec, 1e-6)
	assert.Equal(t, 193, p.DayOfYear)
}

func TestFromFileNotFound(t *testing.T) {
	_, err := FromFile(filepath.Join(t.TempDir(), "missing.fits"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
