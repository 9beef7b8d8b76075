package keyword

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "ngày thi", Fold("  NGÀY Thi "))
	// Decomposed input folds to the composed form.
	assert.Equal(t, Fold("ngày"), Fold(norm.NFD.String("Ngày")))
}

func TestSetMatch(t *testing.T) {
	s := NewSet("ngày", "ca", "Email")

	tests := []struct {
		text string
		want bool
	}{
		{"Ngày thi", true},
		{"NGAY", false},
		{"Ca 2", true},
		{"Vacation", false},
		{"Ca/Slot", true},
		// Short keywords only match whole words.
		{"CaThi", false},
		{"E-mail", false},
		{"Email liên hệ", true},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Match(tt.text), tt.text)
	}
}

func TestSetFirstAndCount(t *testing.T) {
	s := Union(NewSet("date"), NewSet("time", "giờ"))

	kw, ok := s.First("Start time")
	assert.True(t, ok)
	assert.Equal(t, "time", kw)

	assert.Equal(t, 2, s.Count([]string{"Date", "Giờ", "Tên", ""}))
}
