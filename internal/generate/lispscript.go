package generate

import (
	"fmt"
	"strings"
)

// TileProduct is one fixture placed on a comparison tile.
type TileProduct struct {
	Name     string  `json:"name"`
	ImageURL string  `json:"image_url"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

// TileRequest describes a comparison sheet to render as a DWG.
type TileRequest struct {
	TileName string        `json:"tile_name"`
	Products []TileProduct `json:"products"`
}

const (
	tileCellWidth  = 90.0
	tileCellHeight = 60.0
	tileColumns    = 3
	tileGutter     = 10.0
	tileTextHeight = 3.5
)

// BuildTileScript renders a deterministic AutoLISP script that lays the
// tile's product images and captions out on a grid. Products with explicit
// coordinates keep them; the rest flow into rows of tileColumns cells.
func BuildTileScript(req TileRequest, assets []Asset) string {
	var b strings.Builder
	b.WriteString("(defun c:drawtile ()\n")
	b.WriteString(fmt.Sprintf("  (command \"_.-LAYER\" \"_M\" %s \"\")\n", lispString("TILE")))
	b.WriteString(fmt.Sprintf("  (command \"_.TEXT\" (list 0 %.1f) %.1f 0 %s)\n",
		tileCellHeight+tileGutter, tileTextHeight*2, lispString(req.TileName)))

	assetNames := make(map[string]string, len(assets))
	for _, a := range assets {
		assetNames[a.Name] = a.Name
	}

	for i, p := range req.Products {
		x, y := p.X, p.Y
		if x == 0 && y == 0 {
			col := i % tileColumns
			row := i / tileColumns
			x = float64(col) * (tileCellWidth + tileGutter)
			y = -float64(row) * (tileCellHeight + tileGutter)
		}
		w := p.Width
		if w <= 0 {
			w = tileCellWidth
		}
		h := p.Height
		if h <= 0 {
			h = tileCellHeight
		}
		b.WriteString(fmt.Sprintf("  (command \"_.RECTANG\" (list %.1f %.1f) (list %.1f %.1f))\n",
			x, y-h, x+w, y))
		if name, ok := assetNames[p.Name]; ok {
			b.WriteString(fmt.Sprintf("  (command \"_.-IMAGEATTACH\" %s (list %.1f %.1f) %.1f 0)\n",
				lispString(name+".png"), x+1, y-h+1, w-2))
		}
		b.WriteString(fmt.Sprintf("  (command \"_.TEXT\" (list %.1f %.1f) %.1f 0 %s)\n",
			x, y-h-tileTextHeight-1, tileTextHeight, lispString(p.Name)))
	}

	b.WriteString("  (command \"_.ZOOM\" \"_E\")\n")
	b.WriteString("  (princ)\n")
	b.WriteString(")\n")
	b.WriteString("(c:drawtile)\n")
	return b.String()
}

// BuildXRefScript attaches an external floor-plan reference for a
// case-study drawing.
func BuildXRefScript(floorPlanKey, areaName string) string {
	var b strings.Builder
	b.WriteString("(defun c:attachxref ()\n")
	b.WriteString(fmt.Sprintf("  (command \"_.-XREF\" \"_Attach\" %s (list 0 0) 1 1 0)\n", lispString(floorPlanKey)))
	b.WriteString(fmt.Sprintf("  (command \"_.TEXT\" (list 0 -10) %.1f 0 %s)\n", tileTextHeight*2, lispString(areaName)))
	b.WriteString("  (command \"_.ZOOM\" \"_E\")\n")
	b.WriteString("  (princ)\n")
	b.WriteString(")\n")
	b.WriteString("(c:attachxref)\n")
	return b.String()
}

// lispString quotes a value as an AutoLISP string literal. Backslashes and
// quotes must be escaped or the generated script fails to parse.
func lispString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
