package cli

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"volquilt/pkg/quilt"
)

var planShape string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the tile schedule for an array shape",
	Long: `Print, for every spatial axis, where tiles start and how their samples are
weighted, together with the tile count and the memory a stitch needs.`,
	Example: `  volquilt plan --shape 1,1,512,512
  volquilt plan --shape 2x3x64x256x256 --config volquilt.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		shape, err := parseShape(planShape)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		params, err := cfg.QuiltParams(shape[2:])
		if err != nil {
			return err
		}
		spec, err := quilt.NewSpec(params)
		if err != nil {
			return err
		}
		printPlan(cmd, shape, spec)
		return nil
	},
}

func init() {
	planCmd.Flags().StringVarP(&planShape, "shape", "s", "", "Array shape (N,C,spatial...), e.g. 1,1,512,512")
	_ = planCmd.MarkFlagRequired("shape")
}

func printPlan(cmd *cobra.Command, shape []int, spec *quilt.Spec) {
	w := cmd.OutOrStdout()
	PrintSection(w, "Tile schedule")

	rows := make([][]string, 0, spec.Rank())
	for axis := 0; axis < spec.Rank(); axis++ {
		p := spec.Plan(axis)
		a := p.Axis()
		rows = append(rows, []string{
			strconv.Itoa(axis),
			strconv.Itoa(a.Length),
			strconv.Itoa(p.Extent()),
			strconv.Itoa(a.Step),
			strconv.Itoa(a.Border),
			strconv.Itoa(p.Len()),
			formatInts(p.Starts(), 8),
			formatFloats(p.Profile(), 6),
		})
		if p.Truncated() {
			PrintWarning(w, fmt.Sprintf("axis %d: window %d truncated to length %d", axis, a.Window, a.Length))
		}
	}
	PrintTable(w, []string{"axis", "length", "extent", "step", "border", "tiles", "starts", "weights"}, rows)

	n, c := shape[0], shape[1]
	cells := 1
	for _, d := range spec.SpatialShape() {
		cells *= d
	}
	tileCells := 1
	for _, d := range spec.Extent() {
		tileCells *= d
	}
	const float64Size = 8
	elems := uint64(n * c)
	_, _ = fmt.Fprintln(w)
	PrintLabelValue(w, "Tiles", humanize.Comma(int64(spec.NumTiles())))
	PrintLabelValue(w, "Tile shape", fmt.Sprint(append([]int{n, c}, spec.Extent()...)))
	PrintLabelValue(w, "Tile data", humanize.IBytes(elems*uint64(tileCells*spec.NumTiles())*float64Size))
	// Stitching holds a weighted sum and a weight total of full size.
	PrintLabelValue(w, "Accumulator", humanize.IBytes(2*elems*uint64(cells)*float64Size))
}
