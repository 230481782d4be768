package registry

import "strings"

// SparePartPrefix marks spare-part formal codes; anything else is a
// finished good. Every list/filter operation depends on this single
// function, so the prefix check lives here and nowhere else.
const SparePartPrefix = "SP"

// Classify derives the item type from a formal code prefix.
func Classify(fgCode string) ItemType {
	if strings.HasPrefix(strings.ToUpper(fgCode), SparePartPrefix) {
		return ItemTypeSparePart
	}
	return ItemTypeFinishedGoods
}

// ModelCodeFromSKU derives a 3-letter model code from a product SKU.
// Lossy by design: it only seeds references for later review, never a
// correctness-critical path.
func ModelCodeFromSKU(sku string) string {
	letters := make([]byte, 0, len(sku))
	for i := 0; i < len(sku); i++ {
		c := sku[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c >= 'A' && c <= 'Z' {
			letters = append(letters, c)
		}
	}
	switch {
	case len(letters) >= 5:
		return string(letters[2:5])
	case len(letters) >= 3:
		return string(letters[:3])
	default:
		for len(letters) < 3 {
			letters = append(letters, 'X')
		}
		return string(letters)
	}
}

// letterPrefix extracts the first width uppercase letters of s, padding
// with 'X' when s runs short.
func letterPrefix(s string, width int) string {
	out := make([]byte, 0, width)
	for i := 0; i < len(s) && len(out) < width; i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c >= 'A' && c <= 'Z' {
			out = append(out, c)
		}
	}
	for len(out) < width {
		out = append(out, 'X')
	}
	return string(out)
}

// FormalCodePrefix composes the base prefix for a generated formal code:
// one letter of category, two of subcategory, one of brand, three of the
// model name (e.g. "W"+"PR"+"A"+"IEL" for WPRAIEL001).
func FormalCodePrefix(category, subcategory, brand, modelName string) string {
	return letterPrefix(category, 1) + letterPrefix(subcategory, 2) + letterPrefix(brand, 1) + letterPrefix(modelName, 3)
}
