package encoding_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsledger/pkg/encoding"
)

func TestNewUTF8Reader_UTF8Passthrough(t *testing.T) {
	input := `<sms address="AXISBK" body="Debited ₹1,234.00" />`
	r, err := encoding.NewUTF8Reader(strings.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
}

func TestNewUTF8Reader_UTF8BOM(t *testing.T) {
	input := append([]byte{0xEF, 0xBB, 0xBF}, []byte("UTR: ABC123456")...)

	r, err := encoding.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "UTR: ABC123456", string(got))
}

func TestNewUTF8Reader_UTF16LE(t *testing.T) {
	// "Rs 5" in UTF-16 LE with BOM.
	input := []byte{0xFF, 0xFE, 'R', 0, 's', 0, ' ', 0, '5', 0}

	r, err := encoding.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Rs 5", string(got))
}

func TestNewUTF8Reader_Windows1252(t *testing.T) {
	// "Café" with é = 0xE9 in Windows-1252.
	input := []byte{'C', 'a', 'f', 0xE9, ' ', 'R', 's', ' ', '5', '\n'}

	r, err := encoding.NewUTF8Reader(bytes.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "Café Rs 5\n", string(got))
}

func TestNewUTF8Reader_LargeUTF8(t *testing.T) {
	// A multi-byte rune straddling the peek boundary must not trigger transcoding.
	input := strings.Repeat("a", 8191) + "₹" + strings.Repeat("b", 100)

	r, err := encoding.NewUTF8Reader(strings.NewReader(input))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, input, string(got))
}

func TestNewUTF8Reader_Empty(t *testing.T) {
	r, err := encoding.NewUTF8Reader(strings.NewReader(""))
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, got)
}
