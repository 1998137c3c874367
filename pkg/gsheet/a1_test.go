package gsheet

import "testing"

func TestParseA1(t *testing.T) {
	tests := []struct {
		in   string
		want A1Range
	}{
		{"통합시트!A2:O", A1Range{Tab: "통합시트", StartCol: 1, StartRow: 2, EndCol: 15, EndRow: 0}},
		{"주문번호!A:A", A1Range{Tab: "주문번호", StartCol: 1, StartRow: 0, EndCol: 1, EndRow: 0}},
		{"통합시트!C5", A1Range{Tab: "통합시트", StartCol: 3, StartRow: 5, EndCol: 3, EndRow: 5}},
		{"'my tab'!A7:O9", A1Range{Tab: "my tab", StartCol: 1, StartRow: 7, EndCol: 15, EndRow: 9}},
		{"'it''s'!B2", A1Range{Tab: "it's", StartCol: 2, StartRow: 2, EndCol: 2, EndRow: 2}},
	}
	for _, tt := range tests {
		got, err := ParseA1(tt.in)
		if err != nil {
			t.Errorf("ParseA1(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseA1(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseA1_Invalid(t *testing.T) {
	for _, in := range []string{"A1:B2", "!A1", "tab!", "tab!1A", "tab!B2:A3", "tab!A5:A2", "tab!A0"} {
		if _, err := ParseA1(in); err == nil {
			t.Errorf("ParseA1(%q) 应返回错误", in)
		}
	}
}

func TestColumnConversions(t *testing.T) {
	tests := []struct {
		letters string
		idx     int
	}{
		{"A", 1}, {"C", 3}, {"O", 15}, {"Z", 26}, {"AA", 27}, {"AZ", 52}, {"BA", 53},
	}
	for _, tt := range tests {
		if got, _ := ColumnIndex(tt.letters); got != tt.idx {
			t.Errorf("ColumnIndex(%q) = %d, want %d", tt.letters, got, tt.idx)
		}
		if got := ColumnLetter(tt.idx); got != tt.letters {
			t.Errorf("ColumnLetter(%d) = %q, want %q", tt.idx, got, tt.letters)
		}
	}
}

func TestCellRange(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{CellRange("통합시트", "A", 7, "O", 9), "통합시트!A7:O9"},
		{CellRange("통합시트", "A", 2, "O", 0), "통합시트!A2:O"},
		{CellRange("주문번호", "A", 0, "A", 0), "주문번호!A:A"},
		{CellRange("통합시트", "C", 5, "", 0), "통합시트!C5"},
		{CellRange("my tab", "A", 2, "A", 0), "'my tab'!A2:A"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("CellRange = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestA1Range_StringRoundTrip(t *testing.T) {
	for _, in := range []string{"통합시트!A2:O", "주문번호!A:A", "통합시트!C5", "'my tab'!A7:O9"} {
		r, err := ParseA1(in)
		if err != nil {
			t.Fatalf("ParseA1(%q) error = %v", in, err)
		}
		if got := r.String(); got != in {
			t.Errorf("String() = %q, want %q", got, in)
		}
	}
}
