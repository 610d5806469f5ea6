package capabilities

import (
	"strings"

	"github.com/beevik/etree"
)

// WMTSLayer is one layer of a WMTS service.
type WMTSLayer struct {
	Identifier     string
	Title          string
	Formats        []string
	TileMatrixSets []string
	// ResourceURLs are RESTful tile templates, if the server offers them.
	ResourceURLs []string
}

// WMTS is a parsed WMTS capabilities document.
type WMTS struct {
	Version        string
	Layers         []WMTSLayer
	TileMatrixSets []string
}

// ParseWMTS validates and parses a WMTS GetCapabilities document. A
// document is only accepted when it declares at least one layer and one
// tile matrix set, and every layer links to a declared set.
func ParseWMTS(data []byte) (*WMTS, error) {
	root, err := readRoot(data)
	if err != nil {
		return nil, err
	}
	if exceptionRoots[root.Tag] {
		return nil, &ParseError{Kind: KindServiceException, Detail: exceptionText(root)}
	}
	if root.Tag != "Capabilities" {
		return nil, &ParseError{Kind: KindNotCapabilities, Detail: root.Tag}
	}

	w := &WMTS{Version: strings.TrimSpace(root.SelectAttrValue("version", ""))}
	if w.Version == "" {
		return nil, &ParseError{Kind: KindNoVersion}
	}

	contents := root.SelectElement("Contents")
	if contents == nil {
		return nil, &ParseError{Kind: KindNoContents, Detail: "missing Contents element"}
	}

	declared := make(map[string]bool)
	for _, tms := range contents.SelectElements("TileMatrixSet") {
		id := childText(tms, "Identifier")
		if id == "" {
			continue
		}
		declared[id] = true
		w.TileMatrixSets = append(w.TileMatrixSets, id)
	}
	if len(w.TileMatrixSets) == 0 {
		return nil, &ParseError{Kind: KindNoContents, Detail: "no TileMatrixSet declared"}
	}

	for _, el := range contents.SelectElements("Layer") {
		layer, err := parseWMTSLayer(el, declared)
		if err != nil {
			return nil, err
		}
		w.Layers = append(w.Layers, layer)
	}
	if len(w.Layers) == 0 {
		return nil, &ParseError{Kind: KindNoContents, Detail: "no Layer declared"}
	}
	return w, nil
}

func parseWMTSLayer(el *etree.Element, declared map[string]bool) (WMTSLayer, error) {
	layer := WMTSLayer{
		Identifier: childText(el, "Identifier"),
		Title:      childText(el, "Title"),
	}
	if layer.Identifier == "" {
		return layer, &ParseError{Kind: KindNoContents, Detail: "layer without Identifier"}
	}
	for _, f := range el.SelectElements("Format") {
		if v := text(f); v != "" {
			layer.Formats = append(layer.Formats, v)
		}
	}
	for _, link := range el.SelectElements("TileMatrixSetLink") {
		id := childText(link, "TileMatrixSet")
		if id == "" {
			continue
		}
		if !declared[id] {
			return layer, &ParseError{
				Kind:   KindNoContents,
				Detail: "layer " + layer.Identifier + " links unknown TileMatrixSet " + id,
			}
		}
		layer.TileMatrixSets = append(layer.TileMatrixSets, id)
	}
	if len(layer.TileMatrixSets) == 0 {
		return layer, &ParseError{Kind: KindNoContents, Detail: "layer " + layer.Identifier + " has no TileMatrixSetLink"}
	}
	for _, r := range el.SelectElements("ResourceURL") {
		if tpl := r.SelectAttrValue("template", ""); tpl != "" {
			layer.ResourceURLs = append(layer.ResourceURLs, tpl)
		}
	}
	return layer, nil
}
