// Package capabilities parses OGC WMS and WMTS capability documents into
// the small model the checkers need.
package capabilities

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

// BoundingBox is a geographic (lon/lat) extent.
type BoundingBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Style is a named rendering style of a layer.
type Style struct {
	Name  string
	Title string
}

// Layer is a named WMS layer with everything it inherited from its parents.
type Layer struct {
	Name     string
	Title    string
	Abstract string
	// CRS holds upper-cased CRS/SRS codes.
	CRS    map[string]struct{}
	Styles map[string]Style
	BBox   *BoundingBox
}

// SupportsCRS reports whether code is advertised, ignoring case.
func (l *Layer) SupportsCRS(code string) bool {
	_, ok := l.CRS[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// WMS is a parsed GetCapabilities response.
type WMS struct {
	Version           string
	Layers            map[string]*Layer
	Formats           []string
	AccessConstraints []string
	Fees              []string
}

// FindLayerFold looks a layer up ignoring case and returns its real name.
func (w *WMS) FindLayerFold(name string) (string, bool) {
	for n := range w.Layers {
		if strings.EqualFold(n, name) {
			return n, true
		}
	}
	return "", false
}

// SupportsFormat reports whether the GetMap format is advertised.
func (w *WMS) SupportsFormat(format string) bool {
	for _, f := range w.Formats {
		if strings.EqualFold(f, strings.TrimSpace(format)) {
			return true
		}
	}
	return false
}

var (
	wmsRoots       = map[string]bool{"WMT_MS_Capabilities": true, "WMS_Capabilities": true}
	exceptionRoots = map[string]bool{"ServiceExceptionReport": true, "ServiceException": true, "ExceptionReport": true}
)

// ParseWMS parses a WMS GetCapabilities document. Element prefixes are
// ignored, so servers using odd namespace prefixes parse the same way.
func ParseWMS(data []byte) (*WMS, error) {
	root, err := readRoot(data)
	if err != nil {
		return nil, err
	}
	if exceptionRoots[root.Tag] {
		return nil, &ParseError{Kind: KindServiceException, Detail: exceptionText(root)}
	}
	if !wmsRoots[root.Tag] {
		return nil, &ParseError{Kind: KindNotCapabilities, Detail: root.Tag}
	}
	version := strings.TrimSpace(root.SelectAttrValue("version", ""))
	if version == "" {
		return nil, &ParseError{Kind: KindNoVersion}
	}

	w := &WMS{
		Version: version,
		Layers:  make(map[string]*Layer),
	}
	for _, top := range root.FindElements(".//Capability/Layer") {
		w.walkLayer(top, inherited{})
	}
	for _, f := range root.FindElements("./Capability/Request/GetMap/Format") {
		if v := text(f); v != "" {
			w.Formats = append(w.Formats, v)
		}
	}
	w.AccessConstraints = serviceTexts(root, "AccessConstraints")
	w.Fees = serviceTexts(root, "Fees")
	return w, nil
}

// inherited is what a child layer receives from its ancestors. Each level
// works on its own copy so siblings never see each other's additions.
type inherited struct {
	crs    map[string]struct{}
	styles map[string]Style
	bbox   *BoundingBox
}

func (w *WMS) walkLayer(el *etree.Element, parent inherited) {
	cur := inherited{
		crs:    make(map[string]struct{}, len(parent.crs)),
		styles: make(map[string]Style, len(parent.styles)),
		bbox:   parent.bbox,
	}
	for c := range parent.crs {
		cur.crs[c] = struct{}{}
	}
	for k, v := range parent.styles {
		cur.styles[k] = v
	}

	for _, tag := range []string{"CRS", "SRS"} {
		for _, e := range el.SelectElements(tag) {
			// WMS 1.0/1.1 servers may list several codes in one element.
			for _, code := range strings.Fields(e.Text()) {
				cur.crs[strings.ToUpper(code)] = struct{}{}
			}
		}
	}
	for _, s := range el.SelectElements("Style") {
		name := childText(s, "Name")
		if name == "" {
			continue
		}
		cur.styles[name] = Style{Name: name, Title: childText(s, "Title")}
	}
	if bb := geographicBBox(el); bb != nil {
		cur.bbox = bb
	}

	if name := childText(el, "Name"); name != "" {
		w.Layers[name] = &Layer{
			Name:     name,
			Title:    childText(el, "Title"),
			Abstract: childText(el, "Abstract"),
			CRS:      cur.crs,
			Styles:   cur.styles,
			BBox:     cur.bbox,
		}
	}

	for _, child := range el.SelectElements("Layer") {
		w.walkLayer(child, cur)
	}
}

// geographicBBox reads EX_GeographicBoundingBox (1.3.0) or the legacy
// LatLonBoundingBox. nil when neither is present or parseable.
func geographicBBox(el *etree.Element) *BoundingBox {
	if ex := el.SelectElement("EX_GeographicBoundingBox"); ex != nil {
		vals, ok := parseFloats(
			childText(ex, "westBoundLongitude"),
			childText(ex, "southBoundLatitude"),
			childText(ex, "eastBoundLongitude"),
			childText(ex, "northBoundLatitude"),
		)
		if ok {
			return &BoundingBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
		}
	}
	if ll := el.SelectElement("LatLonBoundingBox"); ll != nil {
		vals, ok := parseFloats(
			ll.SelectAttrValue("minx", ""),
			ll.SelectAttrValue("miny", ""),
			ll.SelectAttrValue("maxx", ""),
			ll.SelectAttrValue("maxy", ""),
		)
		if ok {
			return &BoundingBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
		}
	}
	return nil
}

func parseFloats(raw ...string) ([]float64, bool) {
	out := make([]float64, len(raw))
	for i, r := range raw {
		v, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// serviceTexts returns non-trivial texts of Service/<tag>. "none" is what
// most servers put there when there is nothing to say.
func serviceTexts(root *etree.Element, tag string) []string {
	var out []string
	for _, e := range root.FindElements("./Service/" + tag) {
		v := text(e)
		if v == "" || strings.EqualFold(v, "none") {
			continue
		}
		out = append(out, v)
	}
	return out
}

func readRoot(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &ParseError{Kind: KindMalformed, Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, &ParseError{Kind: KindMalformed}
	}
	return root, nil
}

func exceptionText(root *etree.Element) string {
	var parts []string
	for _, path := range []string{".//ServiceException", ".//ExceptionText"} {
		for _, e := range root.FindElements(path) {
			if v := text(e); v != "" {
				parts = append(parts, v)
			}
		}
	}
	if len(parts) == 0 {
		if v := text(root); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "; ")
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return text(c)
	}
	return ""
}

func text(el *etree.Element) string {
	return strings.TrimSpace(el.Text())
}
