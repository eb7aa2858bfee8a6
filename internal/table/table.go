// Package table exports archive product lists as Apache Arrow IPC streams,
// so the listing behind a download script can be loaded into dataframe
// tools without re-querying the archive.
package table

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"github.com/JWST-Templates/Notebooks/internal/mast"
)

// Column names of the product schema.
const (
	ColObsID       = "obs_id"
	ColFilename    = "product_filename"
	ColType        = "product_type"
	ColSubGroup    = "product_sub_group"
	ColDataURI     = "data_uri"
	ColDescription = "description"
	ColSize        = "size"
	ColSelected    = "selected"
)

// ProductSchema is the Arrow schema of an exported product list.
var ProductSchema = arrow.NewSchema([]arrow.Field{
	{Name: ColObsID, Type: arrow.BinaryTypes.String},
	{Name: ColFilename, Type: arrow.BinaryTypes.String},
	{Name: ColType, Type: arrow.BinaryTypes.String},
	{Name: ColSubGroup, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: ColDataURI, Type: arrow.BinaryTypes.String},
	{Name: ColDescription, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: ColSize, Type: arrow.PrimitiveTypes.Int64},
	{Name: ColSelected, Type: arrow.FixedWidthTypes.Boolean},
}, nil)

// Row is a product together with whether it passed the download filter.
type Row struct {
	mast.Product
	Selected bool
}

// Rows marks each product with f.Match.
func Rows(products []mast.Product, f mast.Filter) []Row {
	rows := make([]Row, len(products))
	for i, p := range products {
		rows[i] = Row{Product: p, Selected: f.Match(p)}
	}
	return rows
}

// Build converts rows into a record. The caller must Release it.
func Build(pool memory.Allocator, rows []Row) arrow.Record {
	b := array.NewRecordBuilder(pool, ProductSchema)
	defer b.Release()

	obsID := b.Field(0).(*array.StringBuilder)
	filename := b.Field(1).(*array.StringBuilder)
	ptype := b.Field(2).(*array.StringBuilder)
	subGroup := b.Field(3).(*array.StringBuilder)
	dataURI := b.Field(4).(*array.StringBuilder)
	desc := b.Field(5).(*array.StringBuilder)
	size := b.Field(6).(*array.Int64Builder)
	selected := b.Field(7).(*array.BooleanBuilder)

	for _, r := range rows {
		obsID.Append(r.ObsID)
		filename.Append(r.ProductFilename)
		ptype.Append(r.ProductType)
		appendOptional(subGroup, r.ProductSubGroupDescription)
		dataURI.Append(r.DataURI)
		appendOptional(desc, r.Description)
		size.Append(r.Size)
		selected.Append(r.Selected)
	}

	return b.NewRecord()
}

func appendOptional(b *array.StringBuilder, v string) {
	if v == "" {
		b.AppendNull()
		return
	}
	b.Append(v)
}

// Write writes rows to w as a single-batch Arrow IPC stream.
func Write(w io.Writer, rows []Row) error {
	pool := memory.NewGoAllocator()
	rec := Build(pool, rows)
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(ProductSchema), ipc.WithAllocator(pool))
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("table: write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("table: close writer: %w", err)
	}
	return nil
}

// Read decodes every row of an Arrow IPC stream written by Write.
func Read(r io.Reader) ([]Row, error) {
	reader, err := ipc.NewReader(r, ipc.WithSchema(ProductSchema))
	if err != nil {
		return nil, fmt.Errorf("table: open reader: %w", err)
	}
	defer reader.Release()

	var rows []Row
	for reader.Next() {
		rec := reader.Record()
		obsID := rec.Column(0).(*array.String)
		filename := rec.Column(1).(*array.String)
		ptype := rec.Column(2).(*array.String)
		subGroup := rec.Column(3).(*array.String)
		dataURI := rec.Column(4).(*array.String)
		desc := rec.Column(5).(*array.String)
		size := rec.Column(6).(*array.Int64)
		selected := rec.Column(7).(*array.Boolean)

		for i := 0; i < int(rec.NumRows()); i++ {
			rows = append(rows, Row{
				Product: mast.Product{
					ObsID:                      obsID.Value(i),
					ProductFilename:            filename.Value(i),
					ProductType:                ptype.Value(i),
					ProductSubGroupDescription: subGroup.Value(i),
					DataURI:                    dataURI.Value(i),
					Description:                desc.Value(i),
					Size:                       size.Value(i),
				},
				Selected: selected.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("table: read record: %w", err)
	}
	return rows, nil
}
