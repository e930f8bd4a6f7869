package parser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/uppaal2octopus/internal/model"
	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

func TestHumanParser(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []model.Fact
	}{
		{
			name:  "single transition",
			input: "State ( P.A ) c>=3 , Transitions: P.A->P.B { 1, tau, 1 } State ( P.B ) c>=7 , .",
			want: []model.Fact{
				start("P", "A", 3),
				end("P", "A", 7),
				start("P", "B", 7),
			},
		},
		{
			name: "two processes synchronizing",
			input: `State ( Train.Far Gate.Free ) c>=0, x<=5, t(0)-c<=0, n=0
Transitions:
  Train.Far->Train.Near { 1, appr!, x := 0 }
  Gate.Free->Gate.Occ { 1, appr?, 1 }
State ( Train.Near Gate.Occ ) c>=4, c<=9, x-c<=-4,
.`,
			want: []model.Fact{
				start("Train", "Far", 0),
				start("Gate", "Free", 0),
				end("Train", "Far", 4),
				start("Train", "Near", 4),
				end("Gate", "Free", 4),
				start("Gate", "Occ", 4),
			},
		},
		{
			name:  "upper bound when no lower bound",
			input: "State ( P.A ) c<=2 c<=9 .",
			want:  []model.Fact{start("P", "A", 2)},
		},
		{
			name:  "lower bound wins over earlier upper bound",
			input: "State ( P.A ) c<=9, c>=4 .",
			want:  []model.Fact{start("P", "A", 4)},
		},
		{
			name:  "dotted location name",
			input: "State ( Sys.P.A ) c>=1 .",
			want:  []model.Fact{start("Sys.P", "A", 1)},
		},
		{
			name:  "no terminator",
			input: "State ( P.A ) c>=1",
			want:  []model.Fact{start("P", "A", 1)},
		},
		{
			name: "multi-word edge labels",
			input: "State ( P.A ) c>=0 Transitions: P.A->P.A { c >= 2, tau, c := 0, n := n + 1 } " +
				"State ( P.A ) c>=2 .",
			want: []model.Fact{
				start("P", "A", 0),
				end("P", "A", 2),
				start("P", "A", 2),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts, err := collect(t, NewHumanParser(DefaultConfig()), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, facts)
		})
	}
}

func TestHumanParser_ActiveClock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ActiveClock = "gc"

	facts, err := collect(t, NewHumanParser(cfg), "State ( P.A ) c>=3, gc>=11 .")
	require.NoError(t, err)
	assert.Equal(t, []model.Fact{start("P", "A", 11)}, facts)
}

func TestHumanParser_MissingClock(t *testing.T) {
	_, err := collect(t, NewHumanParser(DefaultConfig()), "State ( P.A ) x>=3 .")
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrMissingClock)

	var cErr *cerrors.ConvertError
	require.True(t, errors.As(err, &cErr))
	assert.Equal(t, "c", cErr.Context["clock"])
}

func TestHumanParser_FormatErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"only terminator", "."},
		{"missing State", "Foo ( P.A ) c>=1 ."},
		{"missing paren", "State P.A ) c>=1 ."},
		{"unterminated locations", "State ( P.A c>=1"},
		{"malformed location", "State ( PA ) c>=1 ."},
		{"bad token", "State ( P.A ) c>=1, ??? ."},
		{"bad clock value", "State ( P.A ) c>=x ."},
		{"bad edge", "State ( P.A ) c>=1 Transitions: nonsense { } State ( P.A ) c>=2 ."},
		{"missing block", "State ( P.A ) c>=1 Transitions: P.A->P.B State ( P.B ) c>=2 ."},
		{"unterminated block", "State ( P.A ) c>=1 Transitions: P.A->P.B { 1, tau, 1"},
		{"trace ends after block", "State ( P.A ) c>=1 Transitions: P.A->P.B { 1, tau, 1 } ."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, NewHumanParser(DefaultConfig()), tt.input)
			require.Error(t, err)
			assert.ErrorIs(t, err, cerrors.ErrFormat, "got %v", err)
		})
	}
}
