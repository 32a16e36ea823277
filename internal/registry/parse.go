package registry

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	pstrings "medcred/pkg/platform/strings"
)

type column int

const (
	colUnknown column = iota
	colDocument
	colName
	colProfession
	colLicense
	colStatus
	colSpecialty
)

// Header keywords, matched against upper-cased header text. Accented and
// plain spellings both occur in the wild.
var headerKeywords = []struct {
	col   column
	words []string
}{
	{colDocument, []string{"CÉDULA", "CEDULA", "DOCUMENTO", "C.I"}},
	{colName, []string{"NOMBRE", "APELLIDO"}},
	{colProfession, []string{"PROFESIÓN", "PROFESION", "TÍTULO", "TITULO"}},
	{colLicense, []string{"MPPS", "MATRÍCULA", "MATRICULA", "REGISTRO"}},
	{colStatus, []string{"ESTATUS", "STATUS", "CONDICIÓN", "CONDICION", "SITUACIÓN", "SITUACION"}},
	{colSpecialty, []string{"ESPECIALIDAD", "POSTGRADO", "ESPECIALIZACIÓN", "ESPECIALIZACION"}},
}

func classifyHeader(text string) column {
	upper := strings.ToUpper(text)
	for _, h := range headerKeywords {
		for _, w := range h.words {
			if strings.Contains(upper, w) {
				return h.col
			}
		}
	}
	return colUnknown
}

// ParseResults extracts candidate rows from a registry results page. Every
// table whose header names a NOMBRE column is treated as a results table;
// columns are located by header text rather than position. A page with no
// such table yields an empty, non-nil slice.
func ParseResults(page string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse registry html: %w", err)
	}

	candidates := []Candidate{}
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		columns := headerColumns(table)
		if !hasColumn(columns, colName) {
			return
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.ChildrenFiltered("td")
			if cells.Length() == 0 {
				return
			}
			var c Candidate
			cells.Each(func(i int, cell *goquery.Selection) {
				if i >= len(columns) {
					return
				}
				switch columns[i] {
				case colDocument:
					c.DocumentNumber = pstrings.CollapseSpace(cell.Text())
				case colName:
					c.Name = strings.ToUpper(pstrings.CollapseSpace(cell.Text()))
				case colProfession:
					c.Profession = pstrings.CollapseSpace(cell.Text())
				case colLicense:
					c.LicenseNumber = pstrings.CollapseSpace(cell.Text())
				case colStatus:
					c.LicenseStatus = strings.ToUpper(pstrings.CollapseSpace(cell.Text()))
				case colSpecialty:
					c.SpecialtyText = multilineText(cell)
				}
			})
			if c.Name == "" && c.DocumentNumber == "" {
				return
			}
			candidates = append(candidates, c)
		})
	})
	return candidates, nil
}

func headerColumns(table *goquery.Selection) []column {
	headers := table.Find("thead th")
	if headers.Length() == 0 {
		headers = table.Find("tr").First().Find("th")
	}
	columns := make([]column, 0, headers.Length())
	headers.Each(func(_ int, th *goquery.Selection) {
		columns = append(columns, classifyHeader(th.Text()))
	})
	return columns
}

func hasColumn(columns []column, want column) bool {
	for _, c := range columns {
		if c == want {
			return true
		}
	}
	return false
}

// multilineText keeps <br> and block boundaries as line breaks so the
// specialty analyzer can split entries.
func multilineText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "br":
				b.WriteByte('\n')
				return
			case "p", "div", "li":
				defer b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.TrimSpace(b.String())
}
