package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  Food Bank of Iowa, Inc. ", "food bank of iowa"},
		{"Boys & Girls Club", "boys and girls club"},
		{"CHILDREN'S HOSPITAL FOUNDATION", "childrens hospital foundation"},
		{"Café Señor  Múñoz", "cafe senor munoz"},
		{"St. Mary's-by-the-Sea", "st marys by the sea"},
		{"Habitat for Humanity International Incorporated", "habitat for humanity international"},
		{"Straße", "strasse"},
		{"Inc", "inc"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestNormalizeEIN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"42-1234567", "421234567"},
		{"421234567", "421234567"},
		{"4212345", "004212345"},
		{"12345678", "012345678"},
		{" 04-2123456 ", "042123456"},
		{"123456", ""},
		{"1234567890", ""},
		{"12-ABCDEFG", ""},
		{"000000000", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeEIN(tt.in))
		})
	}
}

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "IA", NormalizeState("ia"))
	assert.Equal(t, "IA", NormalizeState("Iowa"))
	assert.Equal(t, "NY", NormalizeState(" NEW YORK "))
	assert.Equal(t, "DC", NormalizeState("District of Columbia"))
	assert.Equal(t, "", NormalizeState("ZZ"))
	assert.Equal(t, "", NormalizeState("Atlantis"))
	assert.Equal(t, "", NormalizeState(""))
}

func TestNormalizeCity(t *testing.T) {
	assert.Equal(t, "des moines", NormalizeCity(" DES  MOINES "))
	assert.Equal(t, "st louis", NormalizeCity("St. Louis"))
	assert.Equal(t, "san jose", NormalizeCity("San José"))
}

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"FoodBankIowa.org", "https://foodbankiowa.org"},
		{"http://WWW.Example.ORG/", "http://www.example.org"},
		{"https://example.org/about/?utm=x#top", "https://example.org/about"},
		{"mailto:someone@example.org", ""},
		{"n/a", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeWebsite(tt.in))
		})
	}
}
