package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeReservedKeys(t *testing.T) {
	tests := []struct {
		name     string
		existing map[string]string
	}{
		{"present", map[string]string{"Producer": "Engine 1.0", "Title": "T"}},
		{"absent", map[string]string{"Title": "T"}},
		{"empty", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := Merge(tt.existing, map[string]string{"Producer": "X"})

			want, ok := tt.existing["Producer"]
			gotValue, gotOK := got["Producer"]
			assert.Equal(t, ok, gotOK)
			assert.Equal(t, want, gotValue)
			assert.Equal(t, []Warning{{Key: "Producer", Value: "X"}}, warnings)
		})
	}
}

func TestMergeUpdates(t *testing.T) {
	existing := map[string]string{"Title": "Old", "Author": "A", "Subject": "S"}
	got, warnings := Merge(existing, map[string]string{
		"Title":    "New",
		"Keywords": "k1, k2",
		"Subject":  "",
		"ModDate":  "D:2000",
	})

	assert.Equal(t, map[string]string{"Title": "New", "Author": "A", "Keywords": "k1, k2"}, got)
	assert.Len(t, warnings, 1)
	assert.Equal(t, "ModDate", warnings[0].Key)
	assert.Equal(t, `The property ModDate is set automatically. The value "D:2000" will be ignored.`, warnings[0].String())

	// existing is not modified
	assert.Equal(t, "Old", existing["Title"])
	assert.Equal(t, "S", existing["Subject"])
}

func TestMergeNoUpdates(t *testing.T) {
	existing := map[string]string{"Title": "T"}
	got, warnings := Merge(existing, nil)
	assert.Equal(t, existing, got)
	assert.Empty(t, warnings)
}
