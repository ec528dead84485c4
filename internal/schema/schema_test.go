package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Inheritance(t *testing.T) {
	s := Default()

	rxn, ok := s.Class("Reaction")
	require.True(t, ok)
	assert.True(t, rxn.IsA("ReactionlikeEvent"))
	assert.True(t, rxn.IsA("Event"))
	assert.True(t, rxn.IsA("DatabaseObject"))
	assert.False(t, rxn.IsA("Pathway"))

	// inherited from Event and DatabaseObject
	for _, attr := range []string{"input", "compartment", "modified", "_displayName"} {
		_, ok := rxn.Attribute(attr)
		assert.True(t, ok, attr)
	}

	req := s.MustClass("Requirement")
	assert.True(t, req.IsA("PositiveRegulation"))
	assert.False(t, req.IsA("NegativeRegulation"))
}

func TestValidate(t *testing.T) {
	s := Default()

	assert.NoError(t, s.Validate("Complex", "hasComponent"))
	assert.NoError(t, s.Validate("CandidateSet", "hasMember"))

	err := s.Validate("Complex", "hasMember")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAttribute))

	err = s.Validate("NoSuchClass", "name")
	assert.True(t, errors.Is(err, ErrUnknownClass))
}

func TestSubclasses(t *testing.T) {
	subs := Default().Subclasses("EntitySet")
	assert.Equal(t, []string{"CandidateSet", "DefinedSet", "EntitySet", "OpenSet"}, subs)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown super",
			doc:  "classes:\n  - name: A\n    super: B\n",
			want: "unknown class",
		},
		{
			name: "cycle",
			doc:  "classes:\n  - name: A\n    super: B\n  - name: B\n    super: A\n",
			want: "inheritance cycle",
		},
		{
			name: "bad type",
			doc:  "classes:\n  - name: A\n    attributes:\n      - {name: x, type: float}\n",
			want: "bad type",
		},
		{
			name: "unknown allowed class",
			doc:  "classes:\n  - name: A\n    attributes:\n      - {name: x, type: instance, allowed: [Z]}\n",
			want: "unknown class",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
