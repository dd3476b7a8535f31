package report

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"text/tabwriter"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// WriteText renders s as aligned tables.
func WriteText(w io.Writer, s Summary) error {
	fmt.Fprintf(w, "Anchor %s, tolerance ±%.0f deg, pass ratio %.0f%%", s.Anchor, s.Thresholds.ToleranceDeg, s.Thresholds.PassRatio*100)
	if s.Inverted {
		fmt.Fprint(w, ", antenna upside down")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "GT\tEMITTER\tN\tAZ MEAN\tAZ STD\tAZ PASS\tEL MEAN\tEL STD\tEL PASS\t")
	for _, b := range s.Buckets {
		if len(b.Emitters) == 0 {
			fmt.Fprintf(tw, "%s\t-\t0\t\t\t\t\t\t\t\n", b.GroundTruth)
			continue
		}
		for _, e := range b.Emitters {
			writeRow(tw, b.GroundTruth.String(), e)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Combined")
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tEMITTER\tN\tAZ MEAN\tAZ STD\tAZ PASS\tEL MEAN\tEL STD\tEL PASS\t")
	for _, e := range s.Combined {
		writeRow(tw, verdict(e.Passed), e)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nResult: %s\n", verdict(s.Passed))
	return err
}

func writeRow(w io.Writer, label string, e EmitterResult) {
	fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%.1f%%\t%.2f\t%.2f\t%.1f%%\t\n",
		label, e.EmitterID, e.Azimuth.Count,
		e.Azimuth.Mean, e.Azimuth.StdDev, e.Azimuth.PassRate*100,
		e.Elevation.Mean, e.Elevation.StdDev, e.Elevation.PassRate*100)
}

func verdict(ok bool) string {
	if ok {
		return "PASS"
	}
	return "FAIL"
}

// WriteJSON writes s as indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Histogram geometry. Errors beyond ±histRange land in the edge bins.
const (
	histRange  = 30
	histBin    = 2
	histBins   = 2 * histRange / histBin
	panelW     = 480
	panelH     = 200
	margin     = 24
	imageWidth = panelW + 2*margin
)

var (
	colBackground = color.RGBA{0x20, 0x20, 0x20, 0xff}
	colAzimuth    = color.RGBA{0x4e, 0x9a, 0xe6, 0xff}
	colElevation  = color.RGBA{0xe6, 0x8a, 0x4e, 0xff}
	colTolerance  = color.RGBA{0x60, 0xc0, 0x60, 0xff}
	colText       = color.White
)

// WritePNG draws azimuth and elevation error histograms of errs as a PNG.
func WritePNG(w io.Writer, title string, errs []ErrorRecord, th Thresholds) error {
	height := 2*(panelH+2*margin) + margin
	img := image.NewRGBA(image.Rect(0, 0, imageWidth, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colBackground}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{colText},
		Face: basicfont.Face7x13,
	}
	drawer.Dot = fixed.P(margin, 16)
	drawer.DrawString(title)

	az := make([]int, len(errs))
	el := make([]int, len(errs))
	for i, e := range errs {
		az[i], el[i] = e.AzimuthError, e.ElevationError
	}

	top := margin + 8
	drawPanel(img, drawer, top, "azimuth error", az, th, colAzimuth)
	drawPanel(img, drawer, top+panelH+2*margin, "elevation error", el, th, colElevation)

	return png.Encode(w, img)
}

func histogram(errs []int) [histBins]int {
	var bins [histBins]int
	for _, e := range errs {
		i := (e + histRange) / histBin
		if e < -histRange {
			i = 0
		}
		if i >= histBins {
			i = histBins - 1
		}
		bins[i]++
	}
	return bins
}

func drawPanel(img *image.RGBA, d *font.Drawer, top int, label string, errs []int, th Thresholds, col color.Color) {
	bins := histogram(errs)
	peak := 1
	for _, n := range bins {
		peak = max(peak, n)
	}

	bottom := top + panelH
	barW := panelW / histBins
	for i, n := range bins {
		h := n * (panelH - 16) / peak
		x0 := margin + i*barW
		r := image.Rect(x0+1, bottom-h, x0+barW-1, bottom)
		draw.Draw(img, r, &image.Uniform{col}, image.Point{}, draw.Src)
	}

	// tolerance band edges
	for _, edge := range []float64{-th.ToleranceDeg, th.ToleranceDeg} {
		x := margin + int((edge+histRange)/(2*histRange)*panelW)
		if x < margin || x >= margin+panelW {
			continue
		}
		draw.Draw(img, image.Rect(x, top, x+1, bottom), &image.Uniform{colTolerance}, image.Point{}, draw.Src)
	}

	axis := image.Rect(margin, bottom, margin+panelW, bottom+1)
	draw.Draw(img, axis, &image.Uniform{colText}, image.Point{}, draw.Src)

	d.Dot = fixed.P(margin, top+12)
	d.DrawString(fmt.Sprintf("%s  n=%d  pass=%.1f%%", label, len(errs), PassRate(errs, th.ToleranceDeg)*100))
	d.Dot = fixed.P(margin, bottom+14)
	d.DrawString(fmt.Sprintf("-%d", histRange))
	d.Dot = fixed.P(margin+panelW/2-4, bottom+14)
	d.DrawString("0")
	d.Dot = fixed.P(margin+panelW-3*7, bottom+14)
	d.DrawString(fmt.Sprintf("+%d", histRange))
}
