package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigest(t *testing.T) {
	tests := []struct {
		name string
		a    []byte
		b    []byte
		same bool
	}{
		{
			name: "equal content yields equal digests",
			a:    []byte("attachment content"),
			b:    []byte("attachment content"),
			same: true,
		},
		{
			name: "single byte difference yields different digests",
			a:    []byte("attachment content"),
			b:    []byte("attachment contenu"),
			same: false,
		},
		{
			name: "empty input is valid",
			a:    nil,
			b:    []byte{},
			same: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			da := Digest(tt.a)
			db := Digest(tt.b)
			assert.Len(t, da, 64)
			if tt.same {
				assert.Equal(t, da, db)
			} else {
				assert.NotEqual(t, da, db)
			}
		})
	}
}

func TestDigestIsStable(t *testing.T) {
	data := []byte("stable across calls")
	first := Digest(data)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Digest(data))
	}
}
