package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamesMatch(t *testing.T) {
	registered := "ANGHINIE DEONORA SANCHEZ RODRIGUEZ"
	cases := []struct {
		supplied string
		want     bool
	}{
		{"Anghinie Sánchez", true},
		{"SANCHEZ RODRIGUEZ ANGHINIE", true},
		{"anghinie deonora sanchez rodriguez", true},
		{"Anghinie Deonora Sanches Rodriguez", true},
		{"Maria Gonzalez", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.supplied, func(t *testing.T) {
			got, _ := NamesMatch(tc.supplied, registered, DefaultNameThreshold)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, []string{"JOSE", "MUNOZ", "PENA"}, foldName("José  Muñoz-Peña"))
}
