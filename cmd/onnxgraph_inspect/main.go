// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// onnxgraph_inspect prints human-readable reports over a serialized model
// file: a size summary, the node list, graph IO types, initializers,
// function definitions and checker findings.
//
// Usage: onnxgraph_inspect [flags] <model file>
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/gomlx/onnxgraph/checker"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
)

var (
	flagSummary = flag.Bool("summary", false, "Display a summary of the model: versions, producer, "+
		"graph sizes, parameter counts and the operator sets it imports. This is the default report "+
		"when no other is selected.")
	flagNodes = flag.Bool("nodes", false, "Lists the main graph's nodes with operator, inputs, outputs "+
		"and attribute names, followed by an operator histogram.")
	flagIO = flag.Bool("io", false, "Lists graph inputs, outputs and annotated intermediate values "+
		"with their declared types.")
	flagInits = flag.Bool("initializers", false, "Lists initializers with their type, element count "+
		"and payload size.")
	flagFuncs = flag.Bool("functions", false, "Lists the model's function definitions.")
	flagCheck = flag.String("check", "", "Validate the model before reporting: \"basic\" checks "+
		"structure (SSA, name resolution, opset coverage), \"full\" adds per-operator schema checks.")
)

func main() {
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing model file to read from. See 'onnxgraph_inspect -help'.")
		os.Exit(1)
	}
	if len(args) > 1 {
		klog.Errorf("Too many arguments. See 'onnxgraph_inspect -help'.")
		os.Exit(1)
	}
	if !*flagSummary && !*flagNodes && !*flagIO && !*flagInits && !*flagFuncs && *flagCheck == "" {
		*flagSummary = true
	}
	report(args[0])
}

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

func newPlainTable(withHeader bool) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if withHeader && row == 1 {
				return headerRowStyle
			}
			if row%2 == 0 {
				s = oddRowStyle
			} else {
				s = evenRowStyle
			}
			if col == 0 {
				s = s.Align(lipgloss.Right)
			} else {
				s = s.Align(lipgloss.Left)
			}
			return
		})
}

func report(modelPath string) {
	raw := must.M1(os.ReadFile(modelPath))
	model := &protos.ModelProto{}
	must.M(model.Unmarshal(raw))
	if model.Graph == nil {
		klog.Errorf("Model %q carries no graph.", modelPath)
		os.Exit(1)
	}

	if *flagCheck != "" {
		check(model)
	}
	if *flagSummary {
		summary(modelPath, raw, model)
	}
	if *flagIO {
		ioReport(model.Graph)
	}
	if *flagNodes {
		nodes(model.Graph)
	}
	if *flagInits {
		initializers(model.Graph)
	}
	if *flagFuncs {
		functions(model)
	}
}

func check(model *protos.ModelProto) {
	var level checker.Level
	switch strings.ToLower(*flagCheck) {
	case "basic":
		level = checker.Basic
	case "full":
		level = checker.Full
	default:
		klog.Errorf("Unknown -check level %q: use \"basic\" or \"full\".", *flagCheck)
		os.Exit(1)
	}
	fmt.Println(titleStyle.Render("Check"))
	if err := checker.Check(model, level); err != nil {
		fmt.Printf("model fails the %s check:\n  %v\n", strings.ToLower(*flagCheck), err)
		os.Exit(1)
	}
	fmt.Printf("model passes the %s check\n", strings.ToLower(*flagCheck))
}

func summary(modelPath string, raw []byte, model *protos.ModelProto) {
	fmt.Println(titleStyle.Render("Summary"))
	table := newPlainTable(false)
	table.Row("model", modelPath)
	table.Row("file size", humanize.Bytes(uint64(len(raw))))
	table.Row("ir_version", fmt.Sprintf("%d", model.IrVersion))
	table.Row("producer", strings.TrimSpace(model.ProducerName+" "+model.ProducerVersion))
	if model.Domain != "" {
		table.Row("domain", model.Domain)
	}
	if model.ModelVersion != 0 {
		table.Row("model_version", fmt.Sprintf("%d", model.ModelVersion))
	}

	g := model.Graph
	table.Row("graph", g.Name)
	table.Row("# nodes", humanize.Comma(int64(len(g.Node))))
	table.Row("# inputs", humanize.Comma(int64(len(g.Input))))
	table.Row("# outputs", humanize.Comma(int64(len(g.Output))))
	table.Row("# initializers", humanize.Comma(int64(len(g.Initializer))))
	table.Row("# functions", humanize.Comma(int64(len(model.Functions))))

	var params, paramBytes int64
	for _, tp := range g.Initializer {
		t, err := tensors.FromProto(tp)
		if err != nil {
			klog.Warningf("Initializer %q does not decode: %v", tp.Name, err)
			continue
		}
		params += t.Size()
		paramBytes += t.Memory()
	}
	table.Row("# parameters", humanize.Comma(params))
	table.Row("parameter bytes", humanize.Bytes(uint64(paramBytes)))

	opsets := make([]string, 0, len(model.OpsetImport))
	for _, o := range model.OpsetImport {
		domain := o.Domain
		if domain == "" {
			domain = `""`
		}
		opsets = append(opsets, fmt.Sprintf("%s: %d", domain, o.Version))
	}
	slices.Sort(opsets)
	table.Row("operator sets", strings.Join(opsets, ", "))
	fmt.Println(table.Render())
}

func typeString(vi *protos.ValueInfoProto) string {
	t, err := types.FromProto(vi.Type)
	if err != nil || t == nil {
		return "?"
	}
	return t.String()
}

func ioReport(g *protos.GraphProto) {
	fmt.Println(titleStyle.Render("Inputs and outputs"))
	table := newPlainTable(true)
	table.Row("Kind", "Name", "Type")
	for _, vi := range g.Input {
		table.Row("input", vi.Name, typeString(vi))
	}
	for _, vi := range g.Output {
		table.Row("output", vi.Name, typeString(vi))
	}
	for _, vi := range g.ValueInfo {
		table.Row("value", vi.Name, typeString(vi))
	}
	fmt.Println(table.Render())
}

func nodes(g *protos.GraphProto) {
	fmt.Println(titleStyle.Render("Nodes"))
	table := newPlainTable(true)
	table.Row("#", "Name", "Operator", "Inputs", "Outputs", "Attributes")
	counts := make(map[string]int)
	for i, n := range g.Node {
		op := n.OpType
		if n.Domain != "" {
			op = n.Domain + "::" + op
		}
		counts[op]++
		attrs := make([]string, 0, len(n.Attribute))
		for _, a := range n.Attribute {
			attrs = append(attrs, a.Name)
		}
		table.Row(
			fmt.Sprintf("%d", i),
			n.Name,
			op,
			strings.Join(n.Input, ", "),
			strings.Join(n.Output, ", "),
			strings.Join(attrs, ", "),
		)
	}
	fmt.Println(table.Render())

	fmt.Println(titleStyle.Render("Operators"))
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	slices.SortFunc(ops, func(a, b string) int {
		if c := counts[b] - counts[a]; c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	table = newPlainTable(true)
	table.Row("Operator", "Count")
	for _, op := range ops {
		table.Row(op, humanize.Comma(int64(counts[op])))
	}
	fmt.Println(table.Render())
}

func initializers(g *protos.GraphProto) {
	fmt.Println(titleStyle.Render("Initializers"))
	table := newPlainTable(true)
	table.Row("Name", "Type", "Size", "Bytes")
	rows := make([][]string, 0, len(g.Initializer))
	for _, tp := range g.Initializer {
		t, err := tensors.FromProto(tp)
		if err != nil {
			rows = append(rows, []string{tp.Name, "?", "?", "?"})
			continue
		}
		rows = append(rows, []string{
			tp.Name,
			t.Type().String(),
			humanize.Comma(t.Size()),
			humanize.Bytes(uint64(t.Memory())),
		})
	}
	slices.SortFunc(rows, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	for _, row := range rows {
		table.Row(row...)
	}
	fmt.Println(table.Render())
}

func functions(model *protos.ModelProto) {
	fmt.Println(titleStyle.Render("Functions"))
	table := newPlainTable(true)
	table.Row("Domain", "Name", "Inputs", "Outputs", "Nodes", "Attributes")
	for _, f := range model.Functions {
		attrs := slices.Clone(f.Attribute)
		for _, a := range f.AttributeProto {
			attrs = append(attrs, fmt.Sprintf("%s (default)", a.Name))
		}
		table.Row(
			f.Domain,
			f.Name,
			strings.Join(f.Input, ", "),
			strings.Join(f.Output, ", "),
			humanize.Comma(int64(len(f.Node))),
			strings.Join(attrs, ", "),
		)
	}
	fmt.Println(table.Render())
}
