package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

const font = "Microsoft YaHei"

const contentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const packageRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

// Docx renders entries as a minimal WordprocessingML package: a title
// paragraph, then for each entry a bold speaker line followed by the text.
func Docx(entries []Entry) ([]byte, error) {
	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)

	paragraph(&body, Title, true, 32)
	for _, e := range entries {
		paragraph(&body, e.Speaker+":", true, 0)
		paragraph(&body, strings.TrimRight(e.Text, "\n"), false, 0)
	}

	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	parts := []struct{ name, content string }{
		{"[Content_Types].xml", contentTypes},
		{"_rels/.rels", packageRels},
		{"word/document.xml", body.String()},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", p.name, err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish docx: %w", err)
	}
	return buf.Bytes(), nil
}

// paragraph writes one w:p; line breaks in text become w:br. size is in
// half-points, zero keeps the default.
func paragraph(sb *strings.Builder, text string, bold bool, size int) {
	sb.WriteString(`<w:p><w:r><w:rPr>`)
	sb.WriteString(`<w:rFonts w:ascii="` + font + `" w:hAnsi="` + font + `" w:eastAsia="` + font + `"/>`)
	if bold {
		sb.WriteString(`<w:b/>`)
	}
	if size > 0 {
		sb.WriteString(fmt.Sprintf(`<w:sz w:val="%d"/>`, size))
	}
	sb.WriteString(`</w:rPr>`)

	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			sb.WriteString(`<w:br/>`)
		}
		sb.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(sb, []byte(line))
		sb.WriteString(`</w:t>`)
	}
	sb.WriteString(`</w:r></w:p>`)
}
