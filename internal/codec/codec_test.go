package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutUint8(7)
	w.PutUint32(42)
	w.PutUint64(1 << 40)
	w.PutString("ORANJ")
	w.PutBytes([]byte{1, 2, 3})
	price := uint32(99)
	w.PutOptionalUint32(&price)
	w.PutOptionalUint32(nil)

	r := NewReader(w.Bytes())

	u8, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), u8)

	u32, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), u32)

	u64, err := r.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), u64)

	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ORANJ", s)

	b, err := r.ReadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	opt1, err := r.ReadOptionalUint32()
	require.NoError(t, err)
	require.NotNil(t, opt1)
	assert.Equal(t, uint32(99), *opt1)

	opt2, err := r.ReadOptionalUint32()
	require.NoError(t, err)
	assert.Nil(t, opt2)

	assert.NoError(t, r.RequireExhausted())
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, err := r.ReadUint32()
	assert.Error(t, err)
}

func TestRequireExhaustedFailsOnTrailingBytes(t *testing.T) {
	w := NewWriter()
	w.PutUint8(1)
	w.PutUint8(2)
	r := NewReader(w.Bytes())
	_, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Error(t, r.RequireExhausted())
}

func TestOptionalUint32InvalidTag(t *testing.T) {
	r := NewReader([]byte{2})
	_, err := r.ReadOptionalUint32()
	assert.Error(t, err)
}
