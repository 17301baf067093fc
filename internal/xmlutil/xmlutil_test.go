package xmlutil

import "testing"

func TestParseAttrsTolerantQuoted(t *testing.T) {
	attrs := ParseAttrsTolerant(`img src="1.jpg" recindex="00012"`)
	if attrs["src"] != "1.jpg" || attrs["recindex"] != "00012" {
		t.Fatalf("attrs = %#v", attrs)
	}
}

func TestParseAttrsTolerantUnquoted(t *testing.T) {
	attrs := ParseAttrsTolerant(`a filepos=0001234`)
	if attrs["filepos"] != "0001234" {
		t.Fatalf("attrs = %#v", attrs)
	}
}

func TestParseAttrsTolerantSingleQuoted(t *testing.T) {
	attrs := ParseAttrsTolerant(`a filepos='0001234'`)
	if attrs["filepos"] != "0001234" {
		t.Fatalf("attrs = %#v", attrs)
	}
}

func TestFindTagsDistinguishesPrefixedNames(t *testing.T) {
	matches := FindTags(`<article>x</article><a filepos=10>y</a>`, "a")
	if len(matches) != 1 {
		t.Fatalf("FindTags(a) matched %d tags, want 1: %#v", len(matches), matches)
	}
	if matches[0].Body != "filepos=10" {
		t.Fatalf("matches[0].Body = %q", matches[0].Body)
	}
}

func TestMustAttrUint(t *testing.T) {
	n, err := MustAttrUint(map[string]string{"filepos": "1234"}, "filepos")
	if err != nil || n != 1234 {
		t.Fatalf("MustAttrUint = %d, %v", n, err)
	}
	if _, err := MustAttrUint(map[string]string{"filepos": "12x4"}, "filepos"); err == nil {
		t.Fatalf("expected error for non-decimal value")
	}
}
