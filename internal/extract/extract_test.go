package extract

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// writePackage writes an OOXML-style zip with the given parts.
func writePackage(t *testing.T, name string, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for part, body := range parts {
		w, err := zw.Create(part)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

const wNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

func TestDOCX_SplitsPagesAtTables(t *testing.T) {
	// Given: two paragraphs, a table, then another paragraph
	doc := `<w:document ` + wNS + `><w:body>
<w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
<w:p><w:r><w:t>Second</w:t></w:r><w:r><w:tab/><w:t>part.</w:t></w:r></w:p>
<w:tbl>
  <w:tr><w:tc><w:p><w:r><w:t>Name</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Role</w:t></w:r></w:p></w:tc></w:tr>
  <w:tr><w:tc><w:p><w:r><w:t>Ali</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Pilot</w:t></w:r></w:p></w:tc></w:tr>
</w:tbl>
<w:p><w:r><w:t>After the table.</w:t></w:r></w:p>
</w:body></w:document>`
	path := writePackage(t, "memo.docx", map[string]string{"word/document.xml": doc})

	// When: extracting
	pages, err := NewDOCX().Extract(context.Background(), path)
	require.NoError(t, err)

	// Then: text page, table page, text page in order
	require.Len(t, pages, 3)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "First paragraph.\nSecond\tpart.", pages[0].Text)
	assert.Equal(t, 2, pages[1].Number)
	assert.Empty(t, pages[1].Text)
	require.Len(t, pages[1].Tables, 1)
	assert.Equal(t, Table{{"Name", "Role"}, {"Ali", "Pilot"}}, pages[1].Tables[0])
	assert.Equal(t, "After the table.", pages[2].Text)
}

func TestPPTX_OrdersSlidesNumerically(t *testing.T) {
	slide := func(text string) string {
		return `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree>
<p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp>
</p:spTree></p:cSld></p:sld>`
	}
	tableSlide := `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree>
<p:sp><p:txBody><a:p><a:r><a:t>Budget</a:t></a:r></a:p></p:txBody></p:sp>
<p:graphicFrame><a:graphic><a:graphicData><a:tbl>
<a:tr><a:tc><a:txBody><a:p><a:r><a:t>Q1</a:t></a:r></a:p></a:txBody></a:tc><a:tc><a:txBody><a:p><a:r><a:t>10</a:t></a:r></a:p></a:txBody></a:tc></a:tr>
</a:tbl></a:graphicData></a:graphic></p:graphicFrame>
</p:spTree></p:cSld></p:sld>`

	// Given: slides 1, 2 and 10, slide 2 blank
	path := writePackage(t, "deck.pptx", map[string]string{
		"ppt/slides/slide10.xml": slide("Ten"),
		"ppt/slides/slide1.xml":  tableSlide,
		"ppt/slides/slide2.xml":  slide("  "),
	})

	pages, err := NewPPTX().Extract(context.Background(), path)
	require.NoError(t, err)

	// Then: blank slide dropped, numbering kept, tables attached
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "Budget", pages[0].Text)
	assert.Equal(t, []Table{{{"Q1", "10"}}}, pages[0].Tables)
	assert.Equal(t, 3, pages[1].Number)
	assert.Equal(t, "Ten", pages[1].Text)
}

// writeWorkbook saves a workbook with a populated "Costs" sheet and an
// empty second sheet.
func writeWorkbook(t *testing.T) string {
	t.Helper()
	wb := excelize.NewFile()
	defer func() { _ = wb.Close() }()
	require.NoError(t, wb.SetSheetName("Sheet1", "Costs"))
	_, err := wb.NewSheet("Empty")
	require.NoError(t, err)

	require.NoError(t, wb.SetCellValue("Costs", "A1", "Fuel"))
	require.NoError(t, wb.SetCellValue("Costs", "B1", 12.5))
	require.NoError(t, wb.SetCellRichText("Costs", "A2", []excelize.RichTextRun{{Text: "Rich "}, {Text: "text"}}))
	require.NoError(t, wb.SetCellFormula("Costs", "B2", "SUM(B1:B1)"))
	require.NoError(t, wb.SetCellValue("Costs", "C2", "litres"))
	require.NoError(t, wb.SetCellValue("Costs", "A10", "tail"))
	require.NoError(t, wb.SetCellValue("Costs", "B10", true))

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, wb.SaveAs(path))
	return path
}

func TestXLSX_SheetLinesAndFormulas(t *testing.T) {
	// Given: a workbook with one populated and one empty sheet
	path := writeWorkbook(t)

	// When: extracting
	pages, err := NewXLSX().Extract(context.Background(), path)
	require.NoError(t, err)

	// Then: one page, lines sorted by reference text
	require.Len(t, pages, 1)
	p := pages[0]
	assert.Equal(t, 1, p.Number)
	assert.Equal(t, "Costs", p.SheetTitle)
	assert.Equal(t, 7, p.TotalCells)

	lines := strings.Split(p.Text, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, []string{
		"A1: Fuel",
		"A10: tail",
		"A2: Rich text",
		"B1: 12.5",
		"B10: TRUE",
	}, lines[:5])
	assert.True(t, strings.HasPrefix(lines[5], "B2: "), lines[5])
	assert.True(t, strings.HasSuffix(lines[5], "  (formula: =SUM(B1:B1))"), lines[5])
	assert.Equal(t, "C2: litres", lines[6])
}

func TestXLSX_LegacyXLSRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.xls")
	require.NoError(t, os.WriteFile(path, []byte{0xD0, 0xCF, 0x11, 0xE0}, 0o644))

	_, err := NewXLSX().Extract(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legacy binary .xls")
	assert.Equal(t, docerrors.ErrCodeUnsupportedType, docerrors.GetCode(err))
}

func TestExtract_OpenFailuresAreClassified(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.docx")
	require.NoError(t, os.WriteFile(garbage, []byte("not a zip"), 0o644))
	sheet := filepath.Join(dir, "broken.xlsx")
	require.NoError(t, os.WriteFile(sheet, []byte("not a zip"), 0o644))

	tests := []struct {
		name string
		ex   Extractor
		path string
		code string
	}{
		{"missing docx", NewDOCX(), filepath.Join(dir, "missing.docx"), docerrors.ErrCodeFileNotFound},
		{"corrupt docx", NewDOCX(), garbage, docerrors.ErrCodeFileCorrupt},
		{"corrupt pptx", NewPPTX(), garbage, docerrors.ErrCodeFileCorrupt},
		{"corrupt xlsx", NewXLSX(), sheet, docerrors.ErrCodeFileCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.ex.Extract(context.Background(), tt.path)

			require.Error(t, err)
			assert.Equal(t, tt.code, docerrors.GetCode(err))
		})
	}
}

func TestExtract_UnreadableFileIsPermissionError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read files without permission bits")
	}
	// Given: a Word document nobody may read
	path := filepath.Join(t.TempDir(), "locked.docx")
	require.NoError(t, os.WriteFile(path, []byte("PK"), 0o644))
	require.NoError(t, os.Chmod(path, 0))
	t.Cleanup(func() { _ = os.Chmod(path, 0o644) })

	// When: extracting through the registry
	_, err := New().Extract(context.Background(), path)

	// Then: the failure keeps its permission code
	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeFilePermission, docerrors.GetCode(err))
	de, ok := docerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, path, de.Details["path"])
}

type mockRunner struct {
	output []byte
	err    error
	args   []string
}

func (m *mockRunner) Run(_ context.Context, _ string, args ...string) ([]byte, error) {
	m.args = args
	return m.output, m.err
}

func TestPDF_SplitsOnFormFeed(t *testing.T) {
	// Given: three pages, the second blank, trailing form feed
	runner := &mockRunner{output: []byte("page one\n\f   \n\fpage three\n\f")}
	pdf := NewPDF(WithRunner(runner))

	pages, err := pdf.Extract(context.Background(), "/docs/a.pdf")
	require.NoError(t, err)

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "page one\n", pages[0].Text)
	assert.Equal(t, 3, pages[1].Number)
	assert.Equal(t, "page three\n", pages[1].Text)
	assert.Contains(t, runner.args, "/docs/a.pdf")
}

func TestPDF_RunnerError(t *testing.T) {
	pdf := NewPDF(WithRunner(&mockRunner{err: errors.New("crashed")}))

	_, err := pdf.Extract(context.Background(), "a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext failed")
}

func TestPDF_ToolMissing(t *testing.T) {
	pdf := NewPDF()
	pdf.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := pdf.Extract(context.Background(), "a.pdf")
	assert.ErrorIs(t, err, ErrPDFToolNotFound)
}

func TestRegistry_Dispatch(t *testing.T) {
	runner := &mockRunner{output: []byte("hello\f")}
	reg := New(WithExtractor(".pdf", NewPDF(WithRunner(runner))))

	assert.Equal(t, []string{".docx", ".pdf", ".pptx", ".xls", ".xlsm", ".xlsx"}, reg.Supported())

	pages, err := reg.Extract(context.Background(), "/x/REPORT.PDF")
	require.NoError(t, err)
	assert.Len(t, pages, 1)

	_, err = reg.Extract(context.Background(), "notes.txt")
	assert.Equal(t, docerrors.ErrCodeUnsupportedType, docerrors.GetCode(err))

	_, err = reg.Extract(context.Background(), filepath.Join(t.TempDir(), "missing.docx"))
	assert.Equal(t, docerrors.ErrCodeFileNotFound, docerrors.GetCode(err))
}

func TestTableText(t *testing.T) {
	assert.Equal(t, "[TABLE]\na | b\nc | d", TableText(Table{{"a", "b"}, {"", ""}, {"c", "d"}}))
	assert.Equal(t, "", TableText(Table{{"", " "}}))
}
