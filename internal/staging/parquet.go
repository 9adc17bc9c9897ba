package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/dshills/budgetdb/pkg/types"
)

const readBatchSize = 4096

type lineField struct {
	name string
	get  func(*types.BudgetLine) string
	set  func(*types.BudgetLine, string)
}

// lineFields are the fixed budget line columns, all stored as strings
var lineFields = []lineField{
	{"source_file", func(l *types.BudgetLine) string { return l.SourceFile }, func(l *types.BudgetLine, v string) { l.SourceFile = v }},
	{"exhibit_type", func(l *types.BudgetLine) string { return l.ExhibitType }, func(l *types.BudgetLine, v string) { l.ExhibitType = v }},
	{"sheet_name", func(l *types.BudgetLine) string { return l.SheetName }, func(l *types.BudgetLine, v string) { l.SheetName = v }},
	{"fiscal_year", func(l *types.BudgetLine) string { return l.FiscalYear }, func(l *types.BudgetLine, v string) { l.FiscalYear = v }},
	{"organization", func(l *types.BudgetLine) string { return l.Organization }, func(l *types.BudgetLine, v string) { l.Organization = v }},
	{"account", func(l *types.BudgetLine) string { return l.Account }, func(l *types.BudgetLine, v string) { l.Account = v }},
	{"account_title", func(l *types.BudgetLine) string { return l.AccountTitle }, func(l *types.BudgetLine, v string) { l.AccountTitle = v }},
	{"budget_activity", func(l *types.BudgetLine) string { return l.BudgetActivity }, func(l *types.BudgetLine, v string) { l.BudgetActivity = v }},
	{"budget_activity_title", func(l *types.BudgetLine) string { return l.BudgetActivityTitle }, func(l *types.BudgetLine, v string) { l.BudgetActivityTitle = v }},
	{"sub_activity", func(l *types.BudgetLine) string { return l.SubActivity }, func(l *types.BudgetLine, v string) { l.SubActivity = v }},
	{"sub_activity_title", func(l *types.BudgetLine) string { return l.SubActivityTitle }, func(l *types.BudgetLine, v string) { l.SubActivityTitle = v }},
	{"line_item", func(l *types.BudgetLine) string { return l.LineItem }, func(l *types.BudgetLine, v string) { l.LineItem = v }},
	{"line_item_title", func(l *types.BudgetLine) string { return l.LineItemTitle }, func(l *types.BudgetLine, v string) { l.LineItemTitle = v }},
	{"pe_number", func(l *types.BudgetLine) string { return l.PENumber }, func(l *types.BudgetLine, v string) { l.PENumber = v }},
	{"classification", func(l *types.BudgetLine) string { return l.Classification }, func(l *types.BudgetLine, v string) { l.Classification = v }},
	{"extra_fields", func(l *types.BudgetLine) string { return l.ExtraFields }, func(l *types.BudgetLine, v string) { l.ExtraFields = v }},
}

var lineSetters = func() map[string]func(*types.BudgetLine, string) {
	m := make(map[string]func(*types.BudgetLine, string), len(lineFields))
	for _, f := range lineFields {
		m[f.name] = f.set
	}
	return m
}()

func schemaMetadata() *arrow.Metadata {
	md := arrow.NewMetadata([]string{"budgetdb.format_version"}, []string{FormatVersion})
	return &md
}

// lineSchema builds the explicit schema for a budget line file: fixed string
// columns followed by one nullable float64 per FY column
func lineSchema(fyCols []string) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(lineFields)+len(fyCols))
	for _, f := range lineFields {
		fields = append(fields, arrow.Field{Name: f.name, Type: arrow.BinaryTypes.String})
	}
	for _, col := range fyCols {
		fields = append(fields, arrow.Field{Name: col, Type: arrow.PrimitiveTypes.Float64, Nullable: true})
	}
	return arrow.NewSchema(fields, schemaMetadata())
}

var pageSchema = arrow.NewSchema([]arrow.Field{
	{Name: "source_file", Type: arrow.BinaryTypes.String},
	{Name: "page_number", Type: arrow.PrimitiveTypes.Int32},
	{Name: "page_text", Type: arrow.BinaryTypes.String},
	{Name: "has_tables", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "table_data", Type: arrow.BinaryTypes.String},
	{Name: "fiscal_year", Type: arrow.BinaryTypes.String},
	{Name: "exhibit_type", Type: arrow.BinaryTypes.String},
	{Name: "sections", Type: arrow.BinaryTypes.String},
}, schemaMetadata())

func writeLines(path string, lines []types.BudgetLine, fyCols []string) error {
	schema := lineSchema(fyCols)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for i := range lines {
		l := &lines[i]
		for j, f := range lineFields {
			b.Field(j).(*array.StringBuilder).Append(f.get(l))
		}
		for k, col := range fyCols {
			fb := b.Field(len(lineFields) + k).(*array.Float64Builder)
			if v, ok := l.Amounts[col]; ok {
				fb.Append(v)
			} else {
				fb.AppendNull()
			}
		}
	}

	rec := b.NewRecord()
	defer rec.Release()
	return writeParquet(path, schema, rec)
}

func writePages(path string, pages []types.PdfPage) error {
	b := array.NewRecordBuilder(memory.DefaultAllocator, pageSchema)
	defer b.Release()

	for i := range pages {
		p := &pages[i]
		var sections string
		if len(p.Sections) > 0 {
			data, err := json.Marshal(p.Sections)
			if err != nil {
				return err
			}
			sections = string(data)
		}
		b.Field(0).(*array.StringBuilder).Append(p.SourceFile)
		b.Field(1).(*array.Int32Builder).Append(int32(p.PageNumber))
		b.Field(2).(*array.StringBuilder).Append(p.Text)
		b.Field(3).(*array.BooleanBuilder).Append(p.HasTables)
		b.Field(4).(*array.StringBuilder).Append(p.TableData)
		b.Field(5).(*array.StringBuilder).Append(p.FiscalYear)
		b.Field(6).(*array.StringBuilder).Append(p.ExhibitType)
		b.Field(7).(*array.StringBuilder).Append(sections)
	}

	rec := b.NewRecord()
	defer rec.Release()
	return writeParquet(path, pageSchema, rec)
}

// writeParquet writes one record to path through a temp file and rename
func writeParquet(path string, schema *arrow.Schema, rec arrow.Record) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(schema, tmp, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fail(err)
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fail(err)
	}
	// Close writes the footer and closes tmp
	if err := w.Close(); err != nil {
		return fail(err)
	}
	_ = tmp.Close()

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func readTable(ctx context.Context, path string) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	mem := memory.DefaultAllocator
	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return tbl, nil
}

// readLines reads a budget line file. FY columns are recognized by name;
// NULL cells are left out of Amounts.
func readLines(ctx context.Context, path string) ([]types.BudgetLine, error) {
	tbl, err := readTable(ctx, path)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	fields := tbl.Schema().Fields()
	tr := array.NewTableReader(tbl, readBatchSize)
	defer tr.Release()

	lines := make([]types.BudgetLine, 0, tbl.NumRows())
	for tr.Next() {
		rec := tr.Record()
		n := int(rec.NumRows())
		base := len(lines)
		lines = append(lines, make([]types.BudgetLine, n)...)

		for c, field := range fields {
			col := rec.Column(c)
			if set, ok := lineSetters[field.Name]; ok {
				strs, ok := col.(*array.String)
				if !ok {
					return nil, fmt.Errorf("%s: column %s is %s, want string", path, field.Name, field.Type)
				}
				for i := 0; i < n; i++ {
					if strs.IsValid(i) {
						set(&lines[base+i], strs.Value(i))
					}
				}
				continue
			}
			if !types.ValidFYColumn(field.Name) {
				continue
			}
			vals, ok := col.(*array.Float64)
			if !ok {
				return nil, fmt.Errorf("%s: column %s is %s, want float64", path, field.Name, field.Type)
			}
			for i := 0; i < n; i++ {
				if vals.IsNull(i) {
					continue
				}
				l := &lines[base+i]
				if l.Amounts == nil {
					l.Amounts = make(map[string]float64)
				}
				l.Amounts[field.Name] = vals.Value(i)
			}
		}
	}
	if err := tr.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func readPages(ctx context.Context, path string) ([]types.PdfPage, error) {
	tbl, err := readTable(ctx, path)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	if err := checkPageSchema(tbl.Schema()); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	tr := array.NewTableReader(tbl, readBatchSize)
	defer tr.Release()

	pages := make([]types.PdfPage, 0, tbl.NumRows())
	for tr.Next() {
		rec := tr.Record()
		src := rec.Column(0).(*array.String)
		num := rec.Column(1).(*array.Int32)
		text := rec.Column(2).(*array.String)
		hasTables := rec.Column(3).(*array.Boolean)
		tableData := rec.Column(4).(*array.String)
		fy := rec.Column(5).(*array.String)
		ex := rec.Column(6).(*array.String)
		sections := rec.Column(7).(*array.String)

		for i := 0; i < int(rec.NumRows()); i++ {
			p := types.PdfPage{
				SourceFile:  src.Value(i),
				PageNumber:  int(num.Value(i)),
				Text:        text.Value(i),
				HasTables:   hasTables.Value(i),
				TableData:   tableData.Value(i),
				FiscalYear:  fy.Value(i),
				ExhibitType: ex.Value(i),
			}
			if s := sections.Value(i); s != "" {
				if err := json.Unmarshal([]byte(s), &p.Sections); err != nil {
					return nil, fmt.Errorf("%s page %d sections: %w", path, p.PageNumber, err)
				}
			}
			pages = append(pages, p)
		}
	}
	if err := tr.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}

// checkPageSchema compares names and types only; the reader attaches its own
// field metadata
func checkPageSchema(got *arrow.Schema) error {
	want := pageSchema.Fields()
	have := got.Fields()
	if len(have) != len(want) {
		return fmt.Errorf("page file has %d columns, want %d", len(have), len(want))
	}
	for i := range want {
		if have[i].Name != want[i].Name || !arrow.TypeEqual(have[i].Type, want[i].Type) {
			return fmt.Errorf("page column %d is %s %s, want %s %s",
				i, have[i].Name, have[i].Type, want[i].Name, want[i].Type)
		}
	}
	return nil
}
