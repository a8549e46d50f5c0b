package table

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/xuri/excelize/v2"
)

func decode(t *testing.T, name string, raw []byte) *Dataset {
	t.Helper()
	ds, err := NewDecoder().Decode(context.Background(), name, raw)
	if err != nil {
		t.Fatalf("decode %s: %v", name, err)
	}
	return ds
}

func TestDecodeCSVTwoRows(t *testing.T) {
	ds := decode(t, "ab.csv", []byte("a,b\n1,2\n3,4"))
	if ds.Len() != 2 {
		t.Fatalf("rows = %d, want 2", ds.Len())
	}
	if got := ds.Columns; len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("columns = %v", got)
	}
	if v := ds.Rows[0]["a"]; v.Kind != KindNumber || v.Num != 1 {
		t.Fatalf("row0.a = %+v", v)
	}
	if v := ds.Rows[1]["b"]; v.Kind != KindNumber || v.Num != 4 {
		t.Fatalf("row1.b = %+v", v)
	}
}

func TestDecodeCSVHeaderOnly(t *testing.T) {
	ds := decode(t, "h.csv", []byte("a,b\n"))
	if ds.Len() != 0 {
		t.Fatalf("rows = %d, want 0", ds.Len())
	}
	empty := decode(t, "empty.csv", nil)
	if empty.Len() != 0 {
		t.Fatalf("empty rows = %d", empty.Len())
	}
}

func TestDecodeCSVSparseAndTyped(t *testing.T) {
	raw := "\xEF\xBB\xBFname;score;ok;note\n" +
		"alpha;1.5;TRUE;\n" +
		";;;\n" +
		"beta;;false;\"x;y\"\n" +
		"gamma;2e3;yes;extra;spill\n"
	ds := decode(t, "", []byte(raw))
	if ds.Len() != 3 {
		t.Fatalf("rows = %d, want 3 (blank row skipped)", ds.Len())
	}
	want := []string{"name", "score", "ok", "note", "__EMPTY"}
	if len(ds.Columns) != len(want) {
		t.Fatalf("columns = %v", ds.Columns)
	}
	for i := range want {
		if ds.Columns[i] != want[i] {
			t.Fatalf("columns = %v, want %v", ds.Columns, want)
		}
	}
	r0 := ds.Rows[0]
	if _, ok := r0["note"]; ok {
		t.Fatalf("empty cell should be omitted: %+v", r0)
	}
	if r0["ok"].Kind != KindBool || !r0["ok"].Bool {
		t.Fatalf("ok = %+v", r0["ok"])
	}
	r1 := ds.Rows[1]
	if _, ok := r1["score"]; ok {
		t.Fatalf("sparse row should lack score: %+v", r1)
	}
	if r1["note"].Text != "x;y" {
		t.Fatalf("quoted delimiter = %q", r1["note"].Text)
	}
	r2 := ds.Rows[2]
	if r2["score"].Num != 2000 || r2["ok"].Kind != KindText || r2["__EMPTY"].Text != "spill" {
		t.Fatalf("row2 = %+v", r2)
	}
}

func TestDecodeTSVByContent(t *testing.T) {
	ds := decode(t, "paste", []byte("x\ty\n1\t2\n"))
	if ds.Len() != 1 || ds.Rows[0]["y"].Num != 2 {
		t.Fatalf("tsv = %+v", ds)
	}
}

func TestNormalizeHeader(t *testing.T) {
	got := normalizeHeader([]string{"a", "", "a", "", "a_1", "b"})
	want := []string{"a", "__EMPTY", "a_1", "__EMPTY_1", "a_1_1", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeHeader = %v, want %v", got, want)
		}
	}
}

func TestDecodeXLSXFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", "Summary"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	must(t, f.SetSheetRow("Summary", "A1", &[]any{"city", "sales", "active", "day"}))
	must(t, f.SetSheetRow("Summary", "A2", &[]any{"Oslo", 12.5, true, "2024-01-02"}))
	must(t, f.SetSheetRow("Summary", "A3", &[]any{"Bergen", 7, false}))
	must(t, f.SetSheetRow("Summary", "A5", &[]any{"Tromsø", 3}))
	if _, err := f.NewSheet("Other"); err != nil {
		t.Fatalf("new sheet: %v", err)
	}
	must(t, f.SetSheetRow("Other", "A1", &[]any{"ignored"}))
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	ds := decode(t, "book.bin", buf.Bytes())
	if ds.Sheet != "Summary" {
		t.Fatalf("sheet = %q", ds.Sheet)
	}
	if ds.Len() != 3 {
		t.Fatalf("rows = %d, want 3", ds.Len())
	}
	r0 := ds.Rows[0]
	if r0["city"].Text != "Oslo" || r0["sales"].Num != 12.5 {
		t.Fatalf("row0 = %+v", r0)
	}
	if r0["active"].Kind != KindBool || !r0["active"].Bool {
		t.Fatalf("active = %+v", r0["active"])
	}
	if r0["day"].Text != "2024-01-02" {
		t.Fatalf("day = %+v", r0["day"])
	}
	if ds.Rows[2]["city"].Text != "Tromsø" {
		t.Fatalf("row order not preserved: %+v", ds.Rows)
	}
}

func TestDecodeXLSFirstSheet(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("testdata", "regions.xls"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	ds := decode(t, "upload.bin", raw)
	if ds.Sheet != "Regions" {
		t.Fatalf("sheet = %q", ds.Sheet)
	}
	if want := []string{"region", "revenue", "units"}; !slices.Equal(ds.Columns, want) {
		t.Fatalf("columns = %v, want %v", ds.Columns, want)
	}
	if ds.Len() != 3 {
		t.Fatalf("rows = %d, want 3", ds.Len())
	}
	r0 := ds.Rows[0]
	if r0["region"].Text != "North" || r0["revenue"].Num != 1250.5 || r0["units"].Num != 40 {
		t.Fatalf("row0 = %+v", r0)
	}
	if _, ok := ds.Rows[1]["units"]; ok {
		t.Fatalf("blank cell kept: %+v", ds.Rows[1])
	}
	if ds.Rows[2]["region"].Text != "East" || ds.Rows[2]["units"].Kind != KindNumber {
		t.Fatalf("row2 = %+v", ds.Rows[2])
	}
}

func TestDecodeUnsupported(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"corrupt.xlsx", []byte("PK\x03\x04 this is not really a zip")},
		{"random.xlsx", []byte{0x01, 0x02, 0x03}},
		{"truncated.xls", append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, 0, 0)},
		{"zeroed.xls", append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, make([]byte, 2048)...)},
		{"plain.xls", []byte("region,revenue\nNorth,1\n")},
		{"binary.csv", []byte{'a', 0, 'b', 0xff, 0xfe}},
		{"", []byte{0x00, 0x01, 0x02, 0x03, 0x04}},
	}
	for _, c := range cases {
		_, err := NewDecoder().Decode(context.Background(), c.name, c.raw)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("%q: expected ErrUnsupportedFormat, got %v", c.name, err)
		}
	}
}

func TestDecodeHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDecoder().Decode(ctx, "a.csv", []byte("a\n1\n")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestValueJSON(t *testing.T) {
	row := Row{"n": Number(1.5), "s": Text("x"), "b": Bool(true)}
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"b":true,"n":1.5,"s":"x"}` {
		t.Fatalf("json = %s", b)
	}
	var back Row
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back["n"].Num != 1.5 || back["s"].Text != "x" || !back["b"].Bool {
		t.Fatalf("back = %+v", back)
	}
}

func TestParseCell(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
	}{
		{"", KindEmpty},
		{"  ", KindEmpty},
		{"42", KindNumber},
		{"-1.5e3", KindNumber},
		{"0x1p-2", KindText},
		{"NaN", KindText},
		{"true", KindBool},
		{"12%", KindText},
		{"-", KindText},
	}
	for _, c := range cases {
		if got := ParseCell(c.in).Kind; got != c.kind {
			t.Errorf("ParseCell(%q) kind = %v, want %v", c.in, got, c.kind)
		}
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
