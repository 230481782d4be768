// Package barcode implements the fixed 16-character barcode formats.
//
// Finished goods: "AP" + year(2) + month(1) + model(3) + serial(8).
// Spare parts:    "AP" + supplier(2) + year(1) + month(1) + channel(2) + serial(8).
//
// Encoding and decoding are pure string operations; no lookups are needed,
// so structural validation can run standalone.
package barcode

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/trackline-erp/trackline/internal/shared"
)

// Kind discriminates the two barcode layouts.
type Kind string

const (
	// KindFinishedGoods is the finished-goods layout.
	KindFinishedGoods Kind = "FG"
	// KindSparePart is the spare-part layout.
	KindSparePart Kind = "SP"
)

const (
	// Length is the fixed barcode length.
	Length = 16
	// Prefix starts every barcode.
	Prefix = "AP"

	serialWidth = 8
	// MaxSerial is the largest serial the 8-digit suffix can carry.
	MaxSerial = 99999999
)

// Channel codes are a pinned closed set; decode relies on it to tell the
// two layouts apart.
const (
	ChannelEconomical = "EC"
	ChannelPremium    = "PR"
)

var channelCodes = map[string]struct{}{
	ChannelEconomical: {},
	ChannelPremium:    {},
}

// IsChannelCode reports whether code is a registered channel code.
func IsChannelCode(code string) bool {
	_, ok := channelCodes[code]
	return ok
}

// Fields is the structured breakdown of a barcode.
type Fields struct {
	Kind         Kind
	SupplierCode string // spare parts only, 2 letters
	YearCode     string // 2 letters for FG, 1 letter for SP
	MonthCode    string // 1 letter, A=January .. L=December
	ModelCode    string // finished goods only, 3 letters
	ChannelCode  string // spare parts only, 2 letters
	Serial       int64
}

// Encode renders fields into a 16-character barcode string.
func Encode(kind Kind, f Fields) (string, error) {
	if f.Serial <= 0 || f.Serial > MaxSerial {
		return "", fmt.Errorf("barcode: serial %d out of range: %w", f.Serial, shared.ErrValidation)
	}
	switch kind {
	case KindFinishedGoods:
		if err := requireField("year code", f.YearCode, 2); err != nil {
			return "", err
		}
		if err := requireField("month code", f.MonthCode, 1); err != nil {
			return "", err
		}
		if err := requireField("model code", f.ModelCode, 3); err != nil {
			return "", err
		}
		if !isMonthLetter(f.MonthCode[0]) {
			return "", fmt.Errorf("barcode: month code %q outside A..L: %w", f.MonthCode, shared.ErrValidation)
		}
		// A model code whose tail reads as month+channel would decode as a
		// spare part; such codes are never issued.
		if isMonthLetter(f.ModelCode[0]) && IsChannelCode(f.ModelCode[1:]) {
			return "", fmt.Errorf("barcode: model code %q collides with spare-part layout: %w", f.ModelCode, shared.ErrValidation)
		}
		return Prefix + f.YearCode + f.MonthCode + f.ModelCode + padSerial(f.Serial), nil
	case KindSparePart:
		if err := requireField("supplier code", f.SupplierCode, 2); err != nil {
			return "", err
		}
		if err := requireField("year code", f.YearCode, 1); err != nil {
			return "", err
		}
		if err := requireField("month code", f.MonthCode, 1); err != nil {
			return "", err
		}
		if err := requireField("channel code", f.ChannelCode, 2); err != nil {
			return "", err
		}
		if !isMonthLetter(f.MonthCode[0]) {
			return "", fmt.Errorf("barcode: month code %q outside A..L: %w", f.MonthCode, shared.ErrValidation)
		}
		if !IsChannelCode(f.ChannelCode) {
			return "", fmt.Errorf("barcode: unknown channel code %q: %w", f.ChannelCode, shared.ErrValidation)
		}
		return Prefix + f.SupplierCode + f.YearCode + f.MonthCode + f.ChannelCode + padSerial(f.Serial), nil
	default:
		return "", fmt.Errorf("barcode: unknown kind %q: %w", kind, shared.ErrValidation)
	}
}

// Decode splits a barcode back into fields and infers its kind.
// It never touches storage; only structure is checked.
func Decode(s string) (Fields, error) {
	if len(s) != Length {
		return Fields{}, fmt.Errorf("barcode: length %d, want %d: %w", len(s), Length, shared.ErrMalformedBarcode)
	}
	if !strings.HasPrefix(s, Prefix) {
		return Fields{}, fmt.Errorf("barcode: missing %q prefix: %w", Prefix, shared.ErrMalformedBarcode)
	}
	for i := 2; i < Length-serialWidth; i++ {
		if !isUpperAlnum(s[i]) {
			return Fields{}, fmt.Errorf("barcode: non-alphanumeric at position %d: %w", i, shared.ErrMalformedBarcode)
		}
	}
	serialPart := s[Length-serialWidth:]
	for i := 0; i < serialWidth; i++ {
		if serialPart[i] < '0' || serialPart[i] > '9' {
			return Fields{}, fmt.Errorf("barcode: non-numeric serial suffix: %w", shared.ErrMalformedBarcode)
		}
	}
	serial, err := strconv.ParseInt(serialPart, 10, 64)
	if err != nil {
		return Fields{}, fmt.Errorf("barcode: parse serial: %w", shared.ErrMalformedBarcode)
	}

	if isMonthLetter(s[5]) && IsChannelCode(s[6:8]) {
		return Fields{
			Kind:         KindSparePart,
			SupplierCode: s[2:4],
			YearCode:     s[4:5],
			MonthCode:    s[5:6],
			ChannelCode:  s[6:8],
			Serial:       serial,
		}, nil
	}
	return Fields{
		Kind:      KindFinishedGoods,
		YearCode:  s[2:4],
		MonthCode: s[4:5],
		ModelCode: s[5:8],
		Serial:    serial,
	}, nil
}

func padSerial(serial int64) string {
	return fmt.Sprintf("%0*d", serialWidth, serial)
}

func requireField(name, value string, width int) error {
	if len(value) != width {
		return fmt.Errorf("barcode: %s %q must be %d characters: %w", name, value, width, shared.ErrValidation)
	}
	for i := 0; i < len(value); i++ {
		if !isUpperAlnum(value[i]) {
			return fmt.Errorf("barcode: %s %q must be uppercase alphanumeric: %w", name, value, shared.ErrValidation)
		}
	}
	return nil
}

func isUpperAlnum(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isMonthLetter(c byte) bool {
	return c >= 'A' && c <= 'L'
}
