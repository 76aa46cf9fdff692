package captcha

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"3+4", 7},
		{"3 + 4", 7},
		{"12x3", 36},
		{"7×8", 56},
		{"9 X 2", 18},
		{"5-9", -4},
		{"  2 * 3\n", 6},
		{"=12+5=?", 17},
		{"10 x 10", 100},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParse_Failures(t *testing.T) {
	for _, in := range []string{"", "abc", "3/4", "12", "+-", "99999999999999999999+1"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrParse))

			var pe *ParseError
			require.True(t, errors.As(err, &pe))
		})
	}
}

func TestParse_FallbackReportsOperator(t *testing.T) {
	_, err := Parse("8÷2")
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Reason, "unknown operator")
	assert.Equal(t, "8÷2", pe.Text)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "4x5", Normalize(" 4 × 5 "))
	assert.Equal(t, "4x5", Normalize("4\tX\n5"))
}
