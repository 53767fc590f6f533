package pdfdoc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxOutlineItems = 20000

type ledongthucDoc struct {
	f     *os.File
	r     *pdf.Reader
	pages []pdf.Value
}

// Open reads a PDF from disk with the ledongthuc/pdf backend.
func Open(path string) (Document, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &ledongthucDoc{f: f, r: r}, nil
}

// Load parses PDF bytes already in memory.
func Load(data []byte) (Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}
	return &ledongthucDoc{r: r}, nil
}

func (d *ledongthucDoc) Close() error {
	if d.f != nil {
		return d.f.Close()
	}
	return nil
}

func (d *ledongthucDoc) NumPages() int {
	return d.r.NumPage()
}

func (d *ledongthucDoc) PageText(ctx context.Context, pageNumber int) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if pageNumber < 1 || pageNumber > d.r.NumPage() {
		return "", fmt.Errorf("page %d out of range", pageNumber)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extract page %d: %v", pageNumber, rec)
		}
	}()
	p := d.r.Page(pageNumber)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}

func (d *ledongthucDoc) Outline(ctx context.Context) (items []OutlineItem, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("read outline: %v", rec)
		}
	}()
	root := d.r.Trailer().Key("Root").Key("Outlines")
	if root.IsNull() {
		return nil, nil
	}
	visited := 0
	return d.outlineLevel(ctx, root.Key("First"), &visited)
}

func (d *ledongthucDoc) outlineLevel(ctx context.Context, item pdf.Value, visited *int) ([]OutlineItem, error) {
	var out []OutlineItem
	for !item.IsNull() {
		*visited++
		if *visited > maxOutlineItems {
			return out, fmt.Errorf("outline exceeds %d items", maxOutlineItems)
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		node := OutlineItem{Title: strings.TrimSpace(item.Key("Title").Text())}
		dest := item.Key("Dest")
		if dest.IsNull() {
			action := item.Key("A")
			switch action.Key("S").Name() {
			case "GoTo":
				dest = action.Key("D")
			case "URI":
				node.URL = action.Key("URI").RawString()
			}
		}
		node.Dest = toDestination(dest)
		children, err := d.outlineLevel(ctx, item.Key("First"), visited)
		if err != nil {
			return out, err
		}
		node.Items = children
		out = append(out, node)
		item = item.Key("Next")
	}
	return out, nil
}

func toDestination(v pdf.Value) *Destination {
	switch v.Kind() {
	case pdf.Name:
		return &Destination{Name: v.Name()}
	case pdf.String:
		return &Destination{Name: v.RawString()}
	case pdf.Array:
		return &Destination{Array: arrayValues(v)}
	case pdf.Dict:
		return toDestination(v.Key("D"))
	}
	return nil
}

func arrayValues(v pdf.Value) []any {
	out := make([]any, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		out = append(out, v.Index(i))
	}
	return out
}

func (d *ledongthucDoc) Destination(ctx context.Context, name string) (dest []any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("resolve destination %q: %v", name, rec)
		}
	}()
	catalog := d.r.Trailer().Key("Root")
	if v := catalog.Key("Dests").Key(name); !v.IsNull() {
		if dst := toDestination(v); dst != nil && dst.Array != nil {
			return dst.Array, nil
		}
	}
	if v, ok := lookupNameTree(ctx, catalog.Key("Names").Key("Dests"), name, 0); ok {
		if dst := toDestination(v); dst != nil && dst.Array != nil {
			return dst.Array, nil
		}
	}
	return nil, fmt.Errorf("%w: named destination %q", ErrUnresolved, name)
}

func lookupNameTree(ctx context.Context, node pdf.Value, name string, depth int) (pdf.Value, bool) {
	if node.IsNull() || depth > 32 || ctx.Err() != nil {
		return pdf.Value{}, false
	}
	names := node.Key("Names")
	for i := 0; i+1 < names.Len(); i += 2 {
		if names.Index(i).RawString() == name {
			return names.Index(i + 1), true
		}
	}
	kids := node.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		if limits := kid.Key("Limits"); limits.Len() == 2 {
			if name < limits.Index(0).RawString() || name > limits.Index(1).RawString() {
				continue
			}
		}
		if v, ok := lookupNameTree(ctx, kid, name, depth+1); ok {
			return v, true
		}
	}
	return pdf.Value{}, false
}

func (d *ledongthucDoc) PageIndex(ctx context.Context, ref any) (idx int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("resolve page ref: %v", rec)
		}
	}()
	v, ok := ref.(pdf.Value)
	if !ok {
		return -1, fmt.Errorf("%w: unexpected page ref %T", ErrUnresolved, ref)
	}
	if v.Kind() == pdf.Integer {
		n := int(v.Int64())
		if n >= 0 && n < d.r.NumPage() {
			return n, nil
		}
		return -1, fmt.Errorf("%w: page index %d out of range", ErrUnresolved, n)
	}
	if d.pages == nil {
		d.pages = make([]pdf.Value, 0, d.r.NumPage())
		for i := 1; i <= d.r.NumPage(); i++ {
			d.pages = append(d.pages, d.r.Page(i).V)
		}
	}
	for i, p := range d.pages {
		if i%64 == 0 && ctx.Err() != nil {
			return -1, ctx.Err()
		}
		if reflect.DeepEqual(p, v) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: page ref not found", ErrUnresolved)
}

// PlainText extracts the whole document text in reading order.
func PlainText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}
	return buf.String(), nil
}
