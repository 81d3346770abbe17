package bloodtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompatibleDonorTypes(t *testing.T) {
	cases := map[BloodType][]BloodType{
		APositive:  {APositive, ANegative, OPositive, ONegative},
		ANegative:  {ANegative, ONegative},
		BPositive:  {BPositive, BNegative, OPositive, ONegative},
		BNegative:  {BNegative, ONegative},
		ABPositive: {APositive, ANegative, BPositive, BNegative, ABPositive, ABNegative, OPositive, ONegative},
		ABNegative: {ANegative, BNegative, ABNegative, ONegative},
		OPositive:  {OPositive, ONegative},
		ONegative:  {ONegative},
	}

	for recipient, want := range cases {
		t.Run(recipient.String(), func(t *testing.T) {
			assert.ElementsMatch(t, want, CompatibleDonorTypes(recipient))
		})
	}

	t.Run("unknown type yields no donors", func(t *testing.T) {
		assert.Empty(t, CompatibleDonorTypes("C+"))
		assert.Empty(t, CompatibleDonorTypes(""))
	})

	t.Run("universal donor appears in every set", func(t *testing.T) {
		for _, recipient := range All {
			assert.Contains(t, CompatibleDonorTypes(recipient), ONegative)
		}
	})

	t.Run("result is a copy", func(t *testing.T) {
		got := CompatibleDonorTypes(ONegative)
		got[0] = "X"
		assert.Equal(t, []BloodType{ONegative}, CompatibleDonorTypes(ONegative))
	})
}

func TestParse(t *testing.T) {
	for _, bt := range All {
		parsed, err := Parse(bt.String())
		require.NoError(t, err)
		assert.Equal(t, bt, parsed)
	}

	for _, bad := range []string{"", "a+", "AB", "O", "C-"} {
		_, err := Parse(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}
