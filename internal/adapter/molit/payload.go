package molit

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/groundwatch/sinkhole-risk-service/internal/domain"
)

// Candidate field names per logical attribute, in priority order. The MOLIT
// API revisions and the safetydata.go.kr feed name the same attribute
// differently; the first present, non-empty candidate wins. Lookup is
// case-insensitive.
var (
	idFields       = []string{"sagoNo", "ACDNT_NO", "SENU"}
	provinceFields = []string{"sido", "siDo", "CTPV"}
	districtFields = []string{"sigungu", "siGunGu", "SGG"}
	dongFields     = []string{"dong", "EMD"}
	addressFields  = []string{"addr", "ADDR", "LOC"}
	dateFields     = []string{"sagoDate", "OCRN_YMD", "sagoDateTime"}
	widthFields    = []string{"sinkWidth", "WDTH"}
	depthFields    = []string{"sinkDepth", "DEP"}
	gradeFields    = []string{"evaluateGrade", "EVL_GRD", "RSK_GRD", "GRD", "GRADE"}
	scoreFields    = []string{"EVL_SCR", "SCORE", "RSK_VAL"}
	evalDateFields = []string{"evaluateDate", "EVL_YMD"}
	detailFields   = []string{"sagoDetail", "DTL_OCRN_CS"}
)

// rawItem is one upstream record with lowercased keys and stringified values,
// before candidate-field resolution.
type rawItem map[string]string

func (it rawItem) first(candidates []string) string {
	for _, key := range candidates {
		if v := strings.TrimSpace(it[strings.ToLower(key)]); v != "" {
			return v
		}
	}
	return ""
}

func (it rawItem) firstFloat(candidates []string) float64 {
	v, err := strconv.ParseFloat(it.first(candidates), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// incident resolves a raw record into the common IncidentRecord shape.
func (it rawItem) incident() domain.IncidentRecord {
	return domain.IncidentRecord{
		ID:        it.first(idFields),
		Province:  it.first(provinceFields),
		District:  it.first(districtFields),
		Dong:      it.first(dongFields),
		Address:   it.first(addressFields),
		Date:      it.first(dateFields),
		SinkWidth: it.firstFloat(widthFields),
		SinkDepth: it.firstFloat(depthFields),
		EvalGrade: it.first(gradeFields),
		EvalScore: it.first(scoreFields),
		EvalDate:  it.first(evalDateFields),
		Detail:    it.first(detailFields),
	}
}

// parseItems extracts the record list from a response body in either format.
func parseItems(body []byte, format string) ([]rawItem, error) {
	if format == "xml" {
		return itemsFromXML(body)
	}
	return itemsFromJSON(body)
}

// itemsFromJSON tolerates the envelope variants seen across API revisions:
// response.body.items.item, response.body.items, body.items, and the flat
// body-as-array form used by the safetydata feed. A single object where a
// list is expected is treated as a one-element list.
func itemsFromJSON(body []byte) ([]rawItem, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	node := doc
	if m, ok := node.(map[string]any); ok {
		if inner, ok := m["response"]; ok {
			node = inner
		}
	}
	if m, ok := node.(map[string]any); ok {
		if inner, ok := m["body"]; ok {
			node = inner
		}
	}
	// A map node must carry an items/item key to yield records; a
	// header-only envelope is an empty page, not a one-record list.
	sawItems := false
	if m, ok := node.(map[string]any); ok {
		if inner, ok := m["items"]; ok {
			node, sawItems = inner, true
		} else if inner, ok := m["item"]; ok {
			node, sawItems = inner, true
		}
	}
	if m, ok := node.(map[string]any); ok {
		if inner, ok := m["item"]; ok {
			node, sawItems = inner, true
		}
	}

	switch v := node.(type) {
	case []any:
		items := make([]rawItem, 0, len(v))
		for _, el := range v {
			if m, ok := el.(map[string]any); ok {
				items = append(items, newRawItem(m))
			}
		}
		return items, nil
	case map[string]any:
		if !sawItems || len(v) == 0 {
			return nil, nil
		}
		return []rawItem{newRawItem(v)}, nil
	default:
		return nil, nil
	}
}

func newRawItem(m map[string]any) rawItem {
	it := make(rawItem, len(m))
	for k, v := range m {
		it[strings.ToLower(k)] = stringify(v)
	}
	return it
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return ""
	}
}

// itemsFromXML walks <item> elements and maps each child element name to its
// character data, which keeps the candidate-field machinery format-agnostic.
func itemsFromXML(body []byte) ([]rawItem, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))

	var items []rawItem
	var current rawItem
	var field string
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "item" {
				current = make(rawItem)
			} else if current != nil {
				field = strings.ToLower(t.Name.Local)
			}
		case xml.CharData:
			if current != nil && field != "" {
				current[field] += string(t)
			}
		case xml.EndElement:
			if t.Name.Local == "item" && current != nil {
				items = append(items, current)
				current = nil
			}
			field = ""
		}
	}
	return items, nil
}
