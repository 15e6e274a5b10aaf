package main

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/Carmen-Shannon/oxy-sky/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/kernels"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/pipeline_registry"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/resource_set"
	"github.com/Carmen-Shannon/oxy-sky/engine/sky/scheduler"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

var families = []pipeline_registry.Family{
	pipeline_registry.FamilyLUT,
	pipeline_registry.FamilyRadiance,
	pipeline_registry.FamilyPostProcess,
}

// Inspect prints what the sky allocates and compiles for a face size without touching a GPU.
func Inspect(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	if err := writeInspection(&buf, uint32(ctx.Int("face-size"))); err != nil {
		return err
	}
	_, err := io.Copy(ctx.App.Writer, &buf)
	return err
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(header)
	return table
}

func writeInspection(w io.Writer, faceSize uint32) error {
	rs, err := resource_set.New(resource_set.WithFaceSize(faceSize))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "textures (face size %d)\n", rs.FaceSize())
	table := newTable(w, "Texture", "Size", "Format", "View", "Workgroups")
	for _, spec := range rs.Specs() {
		grid := "-"
		if spec.Tiled {
			wg := spec.Workgroups()
			grid = fmt.Sprintf("%dx%dx%d", wg[0], wg[1], wg[2])
		}
		table.Append([]string{
			spec.Label,
			fmt.Sprintf("%dx%dx%d", spec.Width, spec.Height, spec.DepthOrArrayLayers),
			fmt.Sprintf("%v", spec.Format),
			fmt.Sprintf("%v", spec.ViewDimension),
			grid,
		})
	}
	table.Render()

	fmt.Fprintln(w, "\nkernels")
	table = newTable(w, "Kernel", "Family", "Type", "Entry", "Workgroup size")
	for _, family := range families {
		for _, k := range kernels.Kernels(family) {
			shaders, err := k.Shaders()
			if err != nil {
				return fmt.Errorf("kernel %s: %w", k.Key, err)
			}
			kind, size := "render", "-"
			if k.Type == pipeline.PipelineTypeCompute {
				kind = "compute"
				ws := shaders[0].WorkgroupSize()
				size = fmt.Sprintf("%dx%dx%d", ws[0], ws[1], ws[2])
			}
			table.Append([]string{k.Key, family.String(), kind, k.Entry, size})
		}
	}
	table.Render()

	fmt.Fprintln(w, "\nlayouts")
	table = newTable(w, "Family", "Layout", "Group", "Binding", "Name", "Kind")
	for _, family := range families {
		for _, l := range family.Layouts() {
			for _, slot := range l.Slots {
				table.Append([]string{
					family.String(),
					l.Label,
					strconv.Itoa(int(l.Group)),
					strconv.Itoa(int(slot.Binding)),
					slot.Name,
					slot.Kind.String(),
				})
			}
		}
	}
	table.Render()

	fmt.Fprintln(w, "\nframe graph")
	table = newTable(w, "Order", "Node", "Recorded by", "Reads from")
	edges := scheduler.Edges()
	for i, node := range scheduler.Nodes() {
		by := "sky"
		if node.External() {
			by = "renderer"
		}
		var reads []byte
		for _, e := range edges {
			if e.To != node {
				continue
			}
			if len(reads) > 0 {
				reads = append(reads, ", "...)
			}
			reads = append(reads, e.From.String()...)
		}
		table.Append([]string{strconv.Itoa(i), node.String(), by, string(reads)})
	}
	table.Render()
	return nil
}
