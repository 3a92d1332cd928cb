// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"unsafe"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"

	"github.com/grafana/heaparray/pkg/memblock"
)

// LayoutCommand prints the layout of a block.
type LayoutCommand struct {
	printer Printer

	labelSize  uint64
	labelAlign uint64
	elemSize   uint64
	elemAlign  uint64
	length     int
}

// Register is used to register the command to a parent command.
func (c *LayoutCommand) Register(app *kingpin.Application, printer Printer) {
	c.printer = printer

	cmd := app.Command("layout", "Print the offsets and size of a block.").Action(c.run)
	cmd.Flag("label-size", "Size of the label, in bytes.").Default("8").Uint64Var(&c.labelSize)
	cmd.Flag("label-align", "Alignment of the label, in bytes.").Default("8").Uint64Var(&c.labelAlign)
	cmd.Flag("elem-size", "Size of an element, in bytes.").Default("8").Uint64Var(&c.elemSize)
	cmd.Flag("elem-align", "Alignment of an element, in bytes.").Default("8").Uint64Var(&c.elemAlign)
	cmd.Flag("length", "Number of elements.").Default("0").IntVar(&c.length)
}

func (c *LayoutCommand) run(_ *kingpin.ParseContext) error {
	ls, la, es, ea := uintptr(c.labelSize), uintptr(c.labelAlign), uintptr(c.elemSize), uintptr(c.elemAlign)

	l, err := memblock.ComputeRawLayout(ls, la, es, ea, c.length)
	if err != nil {
		return err
	}

	c.printer.PrintLine(fmt.Sprintf("Length: \t%d", l.Length))
	c.printer.PrintLine(fmt.Sprintf("Label offset: \t0 \tsize %d", l.LabelSize))
	c.printer.PrintLine(fmt.Sprintf("Length offset: \t%d", l.LenOffset))
	c.printer.PrintLine(fmt.Sprintf("Elements offset: \t%d \tsize %d", l.ElemOffset, l.ElemSize*uintptr(l.Length)))
	c.printer.PrintLine(fmt.Sprintf("Block size: \t%d (%s) \talign %d", l.Size, humanize.IBytes(uint64(l.Size)), l.Align))
	c.printer.PrintLine(fmt.Sprintf("Padding: \t%d", l.Size-l.LabelSize-unsafe.Sizeof(uintptr(0))-l.ElemSize*uintptr(l.Length)))
	c.printer.PrintLine(fmt.Sprintf("Max length: \t%s", humanize.Comma(int64(memblock.MaxRawLen(ls, la, es, ea)))))
	return nil
}
