package nr

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
		reason  string
	}{
		{name: "valid", raw: "12345678901", want: "12345678901"},
		{name: "valid with surrounding space", raw: "  98765432109\n", want: "98765432109"},
		{name: "all zeros fails checksum", raw: "00000000000", wantErr: ErrChecksumMismatch, reason: ReasonChecksumMismatch},
		{name: "typo fails checksum", raw: "12345678902", wantErr: ErrChecksumMismatch, reason: ReasonChecksumMismatch},
		{name: "too short", raw: "1234567890", wantErr: ErrMalformed, reason: ReasonMalformed},
		{name: "too long", raw: "123456789012", wantErr: ErrMalformed, reason: ReasonMalformed},
		{name: "punctuation", raw: "123.456.789-01", wantErr: ErrMalformed, reason: ReasonMalformed},
		{name: "letters", raw: "1234567890a", wantErr: ErrMalformed, reason: ReasonMalformed},
		{name: "empty", raw: "", wantErr: ErrMalformed, reason: ReasonMalformed},
		{name: "unicode digits", raw: "１２３４５６７８９０１", wantErr: ErrMalformed, reason: ReasonMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := Parse(tt.raw)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, tt.reason, Reason(err))
				assert.True(t, id.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.String())
		})
	}
}

func TestCheckDigit(t *testing.T) {
	assert.Equal(t, 1, CheckDigit("1234567890"))
	assert.Equal(t, 9, CheckDigit("9876543210"))
	assert.Equal(t, 1, CheckDigit("0000000000"))
	assert.Equal(t, -1, CheckDigit("123"))
	assert.Equal(t, -1, CheckDigit("12345x7890"))
}

func TestParse_ChecksumProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		body := fmt.Sprintf("%010d", rng.Int63n(10_000_000_000))
		check := CheckDigit(body)

		for d := 0; d <= 9; d++ {
			raw := fmt.Sprintf("%s%d", body, d)
			id, err := Parse(raw)
			if d == check {
				require.NoError(t, err, raw)
				assert.Equal(t, raw, id.String())
				assert.Equal(t, body, id.Body())
				assert.Equal(t, d, id.CheckDigit())
				continue
			}
			require.ErrorIs(t, err, ErrChecksumMismatch, raw)
		}
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("00000000000") })
	assert.NotPanics(t, func() { MustParse("12345678901") })
}

func TestZeroIdentifier(t *testing.T) {
	var id Identifier
	assert.True(t, id.IsZero())
	assert.Equal(t, "", id.Body())
	assert.Equal(t, -1, id.CheckDigit())
}

func TestFormatError_Message(t *testing.T) {
	_, err := Parse("abc")
	require.Error(t, err)
	assert.Equal(t, `invalid NR identifier "abc": malformed`, err.Error())
	assert.Equal(t, "", Reason(nil))
}
