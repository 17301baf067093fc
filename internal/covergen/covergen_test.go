package covergen

import "testing"

func TestGridSize(t *testing.T) {
	cases := []struct {
		n        int
		wantCols int
		wantRows int
	}{
		{3, 3, 1},
		{6, 3, 2},
		{9, 3, 3},
		{2, 2, 1},
		{4, 2, 2},
		{8, 2, 4},
		{1, 1, 1},
		{5, 3, 2},
		{7, 3, 3},
	}
	for _, c := range cases {
		cols, rows := gridSize(c.n)
		if cols != c.wantCols || rows != c.wantRows {
			t.Errorf("gridSize(%d) = (%d, %d), want (%d, %d)", c.n, cols, rows, c.wantCols, c.wantRows)
		}
	}
}

func TestGenerate_EmptyTitle(t *testing.T) {
	if _, err := Generate("", nil); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestGenerate_InvalidFont(t *testing.T) {
	if _, err := Generate("Title", []byte("not a font")); err == nil {
		t.Fatal("expected error for unparsable font data")
	}
}

func TestGenerate_TitleTooLongForCover(t *testing.T) {
	// A title with more runes than there are pixel rows to host them leaves
	// useHeight <= 0 before any font parsing happens.
	huge := make([]rune, 1000)
	for i := range huge {
		huge[i] = 'A'
	}
	if _, err := Generate(string(huge), nil); err == nil {
		t.Fatal("expected error for oversized title")
	}
}
