package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// errPartNotFound is returned when a package part is missing.
var errPartNotFound = errors.New("package part not found")

// ooxmlPackage is an opened Office Open XML zip package.
type ooxmlPackage struct {
	rc    *zip.ReadCloser
	parts map[string]*zip.File
}

func openPackage(path string) (*ooxmlPackage, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, openError(path, err)
	}
	parts := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		parts[f.Name] = f
	}
	return &ooxmlPackage{rc: rc, parts: parts}, nil
}

func (p *ooxmlPackage) Close() error {
	return p.rc.Close()
}

// open returns a reader for the named part.
func (p *ooxmlPackage) open(name string) (io.ReadCloser, error) {
	f, ok := p.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errPartNotFound, name)
	}
	return f.Open()
}

// unmarshal decodes the named part into v.
func (p *ooxmlPackage) unmarshal(name string, v any) error {
	r, err := p.open(name)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	if err := xml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// numbered returns the parts named prefix<N>.xml ordered by N.
func (p *ooxmlPackage) numbered(prefix string) []string {
	type part struct {
		name string
		n    int
	}
	var found []part
	for name := range p.parts {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".xml") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".xml"))
		if err != nil {
			continue
		}
		found = append(found, part{name, n})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names
}

// segment is a run of body text or a single table, in document order.
type segment struct {
	text  string
	table Table
}

func (s segment) isTable() bool { return s.table != nil }

// scanBody walks WordprocessingML or DrawingML markup and returns paragraphs
// and tables in document order. Paragraph text is newline-terminated;
// consecutive paragraphs share one segment. Nested tables flatten into the
// enclosing cell.
func scanBody(r io.Reader) ([]segment, error) {
	dec := xml.NewDecoder(r)

	var (
		segs      []segment
		text      strings.Builder
		para      strings.Builder
		cell      strings.Builder
		row       []string
		table     Table
		depth     int
		inRun     bool
		flushText = func() {
			if text.Len() > 0 {
				segs = append(segs, segment{text: text.String()})
				text.Reset()
			}
		}
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				depth++
				if depth == 1 {
					table = Table{}
				}
			case "tr":
				if depth == 1 {
					row = nil
				}
			case "tc":
				if depth == 1 {
					cell.Reset()
				}
			case "p":
				para.Reset()
			case "t":
				inRun = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}

		case xml.CharData:
			if inRun {
				para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inRun = false
			case "p":
				if depth > 0 {
					if cell.Len() > 0 && para.Len() > 0 {
						cell.WriteByte(' ')
					}
					cell.WriteString(para.String())
				} else {
					text.WriteString(para.String())
					text.WriteByte('\n')
				}
				para.Reset()
			case "tc":
				if depth == 1 {
					row = append(row, strings.TrimSpace(cell.String()))
				}
			case "tr":
				if depth == 1 {
					table = append(table, row)
				}
			case "tbl":
				depth--
				if depth == 0 {
					flushText()
					if len(table) > 0 {
						segs = append(segs, segment{table: table})
					}
					table = nil
				}
			}
		}
	}
	flushText()
	return segs, nil
}
