package xccdf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Format re-indents an XML document for human review of downloaded
// reports. The XML declaration is dropped and whitespace-only text nodes
// are collapsed, matching how the harness has always archived reports.
func Format(content []byte) ([]byte, error) {
	decoder := xml.NewDecoder(bytes.NewReader(content))
	var out bytes.Buffer
	encoder := xml.NewEncoder(&out)
	encoder.Indent("", "    ")

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("formatting xml: %w", err)
		}
		switch t := token.(type) {
		case xml.CharData:
			if strings.TrimSpace(string(t)) == "" {
				continue
			}
			if err := encoder.EncodeToken(t); err != nil {
				return nil, err
			}
		case xml.ProcInst:
			// Drop the <?xml ...?> declaration.
			continue
		default:
			if err := encoder.EncodeToken(token); err != nil {
				return nil, err
			}
		}
	}
	if err := encoder.Flush(); err != nil {
		return nil, err
	}
	formatted := bytes.TrimLeft(out.Bytes(), "\n")
	return append(formatted, '\n'), nil
}
