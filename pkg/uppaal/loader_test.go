package uppaal

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/logflow/uppaal2octopus/pkg/errors"
)

func loadFixture(t *testing.T, name string) *Model {
	t.Helper()
	f, err := os.Open("testdata/" + name)
	require.NoError(t, err)
	defer f.Close()

	m, err := LoadModel(f)
	require.NoError(t, err)
	return m
}

func TestLoadModel(t *testing.T) {
	m := loadFixture(t, "loop.if")

	assert.Equal(t, []string{"t(0)", "c"}, m.Clocks)
	assert.Equal(t, []string{"n"}, m.Variables)
	assert.Len(t, m.Layout, 6)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, m.Instructions)

	require.Len(t, m.Processes, 1)
	p := m.Processes[0]
	assert.Equal(t, "P", p.Name)
	assert.Equal(t, 4, p.Initial)
	assert.Equal(t, []int{4, 5}, p.Locations)
	assert.Equal(t, []int{0, 1}, p.Edges)

	assert.Equal(t, ConstCell{Value: 5}, m.Layout[2])
	assert.Equal(t, VarCell{Name: "n", Min: 0, Max: 10, Init: 0, Nr: 0}, m.Layout[3])

	b, err := m.Location(5)
	require.NoError(t, err)
	assert.Equal(t, "B", b.Name)
	assert.Equal(t, FlagCommitted, b.Flags)
	assert.Equal(t, 0, b.Process)
	assert.Equal(t, 7, b.Invariant)

	assert.Equal(t, "tau", m.Expressions[1])
	assert.Equal(t, "n := n + 1", m.Expressions[2])
	assert.Equal(t, "c >= 3", m.Expressions[3])
}

func TestModel_Lookups(t *testing.T) {
	m := loadFixture(t, "loop.if")

	idx, err := m.FindClock("c")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = m.FindClock("x")
	assert.True(t, cerrors.IsCode(err, cerrors.CodeMissingClock))

	loc, err := m.LocalLocation(0, 1)
	require.NoError(t, err)
	assert.Equal(t, "B", loc.Name)

	edge, err := m.LocalEdge(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, edge.Source)
	assert.Equal(t, 5, edge.Target)
	assert.Equal(t, 3, edge.Update)

	_, err = m.Location(2)
	assert.True(t, cerrors.IsCode(err, cerrors.CodeInvalidFormat))
	_, err = m.LocalLocation(0, 2)
	assert.Error(t, err)
	_, err = m.LocalLocation(1, 0)
	assert.Error(t, err)
	_, err = m.LocalEdge(0, 2)
	assert.Error(t, err)
}

func TestLoadModel_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown section", "bogus\n0:1\n"},
		{"malformed clock", "layout\n0:clock:x:c\n"},
		{"unknown layout entry", "layout\n0:widget:1\n"},
		{"unknown location flag", "layout\n0:location:sticky:A\n"},
		{"malformed var", "layout\n0:var:0:1:n\n"},
		{"malformed instruction", "instructions\n0:1 2 3 4 5\n"},
		{"malformed process", "processes\n0:x:P\n"},
		{"location of unknown process", "layout\n0:location::A\n\nlocations\n0:3:-1\n"},
		{"location record on non-location", "layout\n0:clock:0:c\n\nprocesses\n0:0:P\n\nlocations\n0:0:-1\n"},
		{"edge to non-location", "layout\n0:location::A\n1:const:1\n\nprocesses\n0:0:P\n\nedges\n0:0:1:0:0:0\n"},
		{"malformed edge", "edges\n0:0:1\n"},
		{"malformed expression", "expressions\n0:only\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadModel(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, cerrors.ErrFormat)
		})
	}
}

func TestLoadModel_SectionBoundaries(t *testing.T) {
	input := "# header comment\n" +
		"layout\n" +
		"0:clock:0:t(0)\n" +
		"# inside a section\n" +
		"1:location::A\n" +
		"   \n" +
		"processes\n" +
		"0:1:P\n"

	m, err := LoadModel(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, m.Layout, 2)
	assert.Len(t, m.Processes, 1)
}

func TestLoadModel_Empty(t *testing.T) {
	m, err := LoadModel(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, m.Processes)
	assert.Empty(t, m.Clocks)
}
