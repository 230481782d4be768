package barcode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trackline-erp/trackline/internal/shared"
)

func TestEncodeFinishedGoods(t *testing.T) {
	code, err := Encode(KindFinishedGoods, Fields{
		YearCode:  "AA",
		MonthCode: "A",
		ModelCode: "IEL",
		Serial:    1,
	})
	require.NoError(t, err)
	require.Equal(t, "APAAAIEL00000001", code)
}

func TestEncodeSparePart(t *testing.T) {
	code, err := Encode(KindSparePart, Fields{
		SupplierCode: "FS",
		YearCode:     "A",
		MonthCode:    "C",
		ChannelCode:  ChannelEconomical,
		Serial:       42,
	})
	require.NoError(t, err)
	require.Equal(t, "APFSACEC00000042", code)
	require.Len(t, code, Length)
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		kind   Kind
		fields Fields
	}{
		{
			name: "finished goods",
			kind: KindFinishedGoods,
			fields: Fields{
				Kind:      KindFinishedGoods,
				YearCode:  "AF",
				MonthCode: "L",
				ModelCode: "WPR",
				Serial:    12345678,
			},
		},
		{
			name: "spare part economical",
			kind: KindSparePart,
			fields: Fields{
				Kind:         KindSparePart,
				SupplierCode: "FS",
				YearCode:     "G",
				MonthCode:    "B",
				ChannelCode:  ChannelEconomical,
				Serial:       7,
			},
		},
		{
			name: "spare part premium",
			kind: KindSparePart,
			fields: Fields{
				Kind:         KindSparePart,
				SupplierCode: "Z9",
				YearCode:     "A",
				MonthCode:    "A",
				ChannelCode:  ChannelPremium,
				Serial:       MaxSerial,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := Encode(tc.kind, tc.fields)
			require.NoError(t, err)
			decoded, err := Decode(encoded)
			require.NoError(t, err)
			require.Equal(t, tc.fields, decoded)
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"too short", "APAAAIEL0000001"},
		{"too long", "APAAAIEL000000001"},
		{"missing prefix", "XXAAAIEL00000001"},
		{"lowercase body", "APaaAIEL00000001"},
		{"non-numeric serial", "APAAAIEL0000000X"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.in)
			require.ErrorIs(t, err, shared.ErrMalformedBarcode)
		})
	}
}

func TestEncodeValidation(t *testing.T) {
	_, err := Encode(KindFinishedGoods, Fields{YearCode: "AA", MonthCode: "A", ModelCode: "IEL", Serial: 0})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Encode(KindFinishedGoods, Fields{YearCode: "AA", MonthCode: "A", ModelCode: "IEL", Serial: MaxSerial + 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Encode(KindFinishedGoods, Fields{YearCode: "AAA", MonthCode: "A", ModelCode: "IEL", Serial: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Encode(KindFinishedGoods, Fields{YearCode: "AA", MonthCode: "Z", ModelCode: "IEL", Serial: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Encode(KindFinishedGoods, Fields{YearCode: "AA", MonthCode: "A", ModelCode: "ie!", Serial: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	// Model codes that read as month+channel would decode as spare parts.
	_, err = Encode(KindFinishedGoods, Fields{YearCode: "AA", MonthCode: "A", ModelCode: "BEC", Serial: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Encode(KindSparePart, Fields{SupplierCode: "FS", YearCode: "A", MonthCode: "A", ChannelCode: "XX", Serial: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = Encode(Kind("??"), Fields{Serial: 1})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDecodeInfersKind(t *testing.T) {
	fg, err := Decode("APAAAIEL00000001")
	require.NoError(t, err)
	require.Equal(t, KindFinishedGoods, fg.Kind)
	require.Equal(t, "AA", fg.YearCode)
	require.Equal(t, "A", fg.MonthCode)
	require.Equal(t, "IEL", fg.ModelCode)
	require.EqualValues(t, 1, fg.Serial)

	sp, err := Decode("APFSACEC00000042")
	require.NoError(t, err)
	require.Equal(t, KindSparePart, sp.Kind)
	require.Equal(t, "FS", sp.SupplierCode)
	require.Equal(t, "A", sp.YearCode)
	require.Equal(t, "C", sp.MonthCode)
	require.Equal(t, ChannelEconomical, sp.ChannelCode)
	require.EqualValues(t, 42, sp.Serial)
}

func TestDecodeNeverErrorsOnStructurallyValidInput(t *testing.T) {
	// Unregistered channel positions fall back to the finished-goods layout.
	f, err := Decode("APZZZZZZ00000009")
	require.NoError(t, err)
	require.Equal(t, KindFinishedGoods, f.Kind)
	require.Equal(t, "ZZZ", f.ModelCode)
}

func TestEncodeErrorCreatesNoPartialOutput(t *testing.T) {
	code, err := Encode(KindSparePart, Fields{SupplierCode: "F", YearCode: "A", MonthCode: "A", ChannelCode: ChannelEconomical, Serial: 1})
	require.Error(t, err)
	require.Empty(t, code)
	require.False(t, errors.Is(err, shared.ErrMalformedBarcode))
}
