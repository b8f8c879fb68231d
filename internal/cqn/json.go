package cqn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/qinfer/internal/ir"
)

// DecodeError reports a malformed query document.
type DecodeError struct {
	Path    string
	Message string
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "decode query: " + e.Message
	}
	return fmt.Sprintf("decode query: %s: %s", e.Path, e.Message)
}

func decodeErr(path, format string, args ...any) error {
	return &DecodeError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// Unmarshal decodes a query document in its JSON form:
//
//	{"SELECT": {"from": {"ref": ["Books"]}, "columns": [{"ref": ["title"]}]}}
//
// Exactly one of SELECT, INSERT, UPSERT, UPDATE or DELETE must be present.
// Integral numbers decode to ir.IRInt and all other numbers to ir.IRDecimal.
func Unmarshal(data []byte) (Query, error) {
	var doc map[string]json.RawMessage
	if err := decodeStrict(data, &doc); err != nil {
		return nil, decodeErr("", "%v", err)
	}
	if len(doc) != 1 {
		return nil, decodeErr("", "expected exactly one statement, got %d keys", len(doc))
	}

	for kind, body := range doc {
		switch kind {
		case "SELECT":
			return decodeSelect(body, "SELECT")
		case "INSERT":
			return decodeInsert(body)
		case "UPSERT":
			return decodeUpsert(body)
		case "UPDATE":
			return decodeUpdate(body)
		case "DELETE":
			return decodeDelete(body)
		default:
			return nil, decodeErr("", "unknown statement %q", kind)
		}
	}
	return nil, decodeErr("", "empty document")
}

// decodeStrict decodes with UseNumber and rejects unknown struct fields.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func firstByte(raw json.RawMessage) byte {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return 0
	}
	return t[0]
}

type limitJSON struct {
	Rows   json.RawMessage `json:"rows"`
	Offset json.RawMessage `json:"offset"`
}

type selectJSON struct {
	From      json.RawMessage   `json:"from"`
	Columns   []json.RawMessage `json:"columns"`
	Excluding []string          `json:"excluding"`
	Where     json.RawMessage   `json:"where"`
	GroupBy   []json.RawMessage `json:"groupBy"`
	Having    json.RawMessage   `json:"having"`
	OrderBy   []json.RawMessage `json:"orderBy"`
	Limit     *limitJSON        `json:"limit"`
	Distinct  bool              `json:"distinct"`
	One       bool              `json:"one"`
}

func decodeSelect(raw json.RawMessage, path string) (*Select, error) {
	var body selectJSON
	if err := decodeStrict(raw, &body); err != nil {
		return nil, decodeErr(path, "%v", err)
	}
	if isNull(body.From) {
		return nil, decodeErr(path, "from is required")
	}

	sel := &Select{Excluding: body.Excluding, Distinct: body.Distinct, One: body.One}

	var err error
	if sel.From, err = decodeSource(body.From, path+".from"); err != nil {
		return nil, err
	}
	for i, c := range body.Columns {
		col, err := decodeColumn(c, fmt.Sprintf("%s.columns[%d]", path, i))
		if err != nil {
			return nil, err
		}
		sel.Columns = append(sel.Columns, col)
	}
	if sel.Where, err = decodeClause(body.Where, path+".where"); err != nil {
		return nil, err
	}
	for i, g := range body.GroupBy {
		e, err := decodeToken(g, fmt.Sprintf("%s.groupBy[%d]", path, i))
		if err != nil {
			return nil, err
		}
		sel.GroupBy = append(sel.GroupBy, e)
	}
	if sel.Having, err = decodeClause(body.Having, path+".having"); err != nil {
		return nil, err
	}
	for i, o := range body.OrderBy {
		ob, err := decodeOrderBy(o, fmt.Sprintf("%s.orderBy[%d]", path, i))
		if err != nil {
			return nil, err
		}
		sel.OrderBy = append(sel.OrderBy, ob)
	}
	if body.Limit != nil {
		sel.Limit = &Limit{}
		if !isNull(body.Limit.Rows) {
			if sel.Limit.Rows, err = decodeToken(body.Limit.Rows, path+".limit.rows"); err != nil {
				return nil, err
			}
		}
		if !isNull(body.Limit.Offset) {
			if sel.Limit.Offset, err = decodeToken(body.Limit.Offset, path+".limit.offset"); err != nil {
				return nil, err
			}
		}
	}
	return sel, nil
}

type insertJSON struct {
	Into    json.RawMessage   `json:"into"`
	Columns []string          `json:"columns"`
	Entries []json.RawMessage `json:"entries"`
	Rows    []json.RawMessage `json:"rows"`
	As      json.RawMessage   `json:"as"`
}

func decodeInsertBody(raw json.RawMessage, path string) (*insertJSON, *EntitySource, []ir.IRObject, []ir.IRArray, error) {
	var body insertJSON
	if err := decodeStrict(raw, &body); err != nil {
		return nil, nil, nil, nil, decodeErr(path, "%v", err)
	}
	if isNull(body.Into) {
		return nil, nil, nil, nil, decodeErr(path, "into is required")
	}
	into, err := decodeEntitySource(body.Into, path+".into")
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var entries []ir.IRObject
	for i, e := range body.Entries {
		v, err := ir.UnmarshalIRValue(e)
		if err != nil {
			return nil, nil, nil, nil, decodeErr(fmt.Sprintf("%s.entries[%d]", path, i), "%v", err)
		}
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, nil, nil, nil, decodeErr(fmt.Sprintf("%s.entries[%d]", path, i), "entry must be an object")
		}
		entries = append(entries, obj)
	}

	var rows []ir.IRArray
	for i, r := range body.Rows {
		v, err := ir.UnmarshalIRValue(r)
		if err != nil {
			return nil, nil, nil, nil, decodeErr(fmt.Sprintf("%s.rows[%d]", path, i), "%v", err)
		}
		arr, ok := v.(ir.IRArray)
		if !ok {
			return nil, nil, nil, nil, decodeErr(fmt.Sprintf("%s.rows[%d]", path, i), "row must be an array")
		}
		rows = append(rows, arr)
	}
	return &body, into, entries, rows, nil
}

func decodeInsert(raw json.RawMessage) (*Insert, error) {
	body, into, entries, rows, err := decodeInsertBody(raw, "INSERT")
	if err != nil {
		return nil, err
	}
	ins := &Insert{Into: into, Columns: body.Columns, Entries: entries, Rows: rows}
	if !isNull(body.As) {
		var doc struct {
			Select json.RawMessage `json:"SELECT"`
		}
		if err := decodeStrict(body.As, &doc); err != nil || isNull(doc.Select) {
			return nil, decodeErr("INSERT.as", "expected a SELECT statement")
		}
		if ins.As, err = decodeSelect(doc.Select, "INSERT.as.SELECT"); err != nil {
			return nil, err
		}
	}
	return ins, nil
}

func decodeUpsert(raw json.RawMessage) (*Upsert, error) {
	body, into, entries, rows, err := decodeInsertBody(raw, "UPSERT")
	if err != nil {
		return nil, err
	}
	if !isNull(body.As) {
		return nil, decodeErr("UPSERT.as", "upsert does not take a sub-select")
	}
	return &Upsert{Into: into, Columns: body.Columns, Entries: entries, Rows: rows}, nil
}

type updateJSON struct {
	Entity json.RawMessage            `json:"entity"`
	Data   json.RawMessage            `json:"data"`
	With   map[string]json.RawMessage `json:"with"`
	Where  json.RawMessage            `json:"where"`
}

func decodeUpdate(raw json.RawMessage) (*Update, error) {
	var body updateJSON
	if err := decodeStrict(raw, &body); err != nil {
		return nil, decodeErr("UPDATE", "%v", err)
	}
	if isNull(body.Entity) {
		return nil, decodeErr("UPDATE", "entity is required")
	}
	entity, err := decodeEntitySource(body.Entity, "UPDATE.entity")
	if err != nil {
		return nil, err
	}
	upd := &Update{Entity: entity}

	if !isNull(body.Data) {
		v, err := ir.UnmarshalIRValue(body.Data)
		if err != nil {
			return nil, decodeErr("UPDATE.data", "%v", err)
		}
		obj, ok := v.(ir.IRObject)
		if !ok {
			return nil, decodeErr("UPDATE.data", "data must be an object")
		}
		upd.Data = obj
	}

	names := make([]string, 0, len(body.With))
	for name := range body.With {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e, err := decodeToken(body.With[name], "UPDATE.with."+name)
		if err != nil {
			return nil, err
		}
		upd.With = append(upd.With, &Assignment{Element: name, Value: e})
	}

	if upd.Where, err = decodeClause(body.Where, "UPDATE.where"); err != nil {
		return nil, err
	}
	return upd, nil
}

type deleteJSON struct {
	From  json.RawMessage `json:"from"`
	Where json.RawMessage `json:"where"`
}

func decodeDelete(raw json.RawMessage) (*Delete, error) {
	var body deleteJSON
	if err := decodeStrict(raw, &body); err != nil {
		return nil, decodeErr("DELETE", "%v", err)
	}
	if isNull(body.From) {
		return nil, decodeErr("DELETE", "from is required")
	}
	from, err := decodeEntitySource(body.From, "DELETE.from")
	if err != nil {
		return nil, err
	}
	del := &Delete{From: from}
	if del.Where, err = decodeClause(body.Where, "DELETE.where"); err != nil {
		return nil, err
	}
	return del, nil
}

func decodeEntitySource(raw json.RawMessage, path string) (*EntitySource, error) {
	src, err := decodeSource(raw, path)
	if err != nil {
		return nil, err
	}
	es, ok := src.(*EntitySource)
	if !ok {
		return nil, decodeErr(path, "expected an entity path")
	}
	return es, nil
}

func decodeSource(raw json.RawMessage, path string) (Source, error) {
	if firstByte(raw) == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, decodeErr(path, "%v", err)
		}
		return &EntitySource{Ref: NewRef(name)}, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, decodeErr(path, "source must be a name or an object")
	}

	var as string
	if a, ok := m["as"]; ok {
		if err := json.Unmarshal(a, &as); err != nil {
			return nil, decodeErr(path+".as", "alias must be a string")
		}
	}

	switch {
	case m["ref"] != nil:
		ref, err := decodeRef(m["ref"], path+".ref")
		if err != nil {
			return nil, err
		}
		return &EntitySource{Ref: ref, As: as}, nil

	case m["SELECT"] != nil:
		sel, err := decodeSelect(m["SELECT"], path+".SELECT")
		if err != nil {
			return nil, err
		}
		return &SubQuerySource{Query: sel, As: as}, nil

	case m["join"] != nil:
		js := &JoinSource{}
		if err := json.Unmarshal(m["join"], &js.Kind); err != nil {
			return nil, decodeErr(path+".join", "join kind must be a string")
		}
		js.Kind = strings.ToLower(js.Kind)
		var args []json.RawMessage
		if err := json.Unmarshal(m["args"], &args); err != nil {
			return nil, decodeErr(path+".args", "join args must be an array")
		}
		for i, a := range args {
			s, err := decodeSource(a, fmt.Sprintf("%s.args[%d]", path, i))
			if err != nil {
				return nil, err
			}
			js.Args = append(js.Args, s)
		}
		var err error
		if js.On, err = decodeClause(m["on"], path+".on"); err != nil {
			return nil, err
		}
		return js, nil
	}
	return nil, decodeErr(path, "source needs one of ref, SELECT or join")
}

func decodeRef(raw json.RawMessage, path string) (*Ref, error) {
	var steps []json.RawMessage
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, decodeErr(path, "ref must be an array")
	}
	ref := &Ref{}
	for i, s := range steps {
		step, err := decodeStep(s, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		ref.Steps = append(ref.Steps, step)
	}
	return ref, nil
}

func decodeStep(raw json.RawMessage, path string) (*Step, error) {
	if firstByte(raw) == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, decodeErr(path, "%v", err)
		}
		return &Step{ID: id}, nil
	}

	var body struct {
		ID    string                     `json:"id"`
		Where json.RawMessage            `json:"where"`
		Args  map[string]json.RawMessage `json:"args"`
	}
	if err := decodeStrict(raw, &body); err != nil {
		return nil, decodeErr(path, "%v", err)
	}
	step := &Step{ID: body.ID}
	var err error
	if step.Where, err = decodeClause(body.Where, path+".where"); err != nil {
		return nil, err
	}
	if len(body.Args) > 0 {
		step.Args = make(map[string]Expr, len(body.Args))
		for name, a := range body.Args {
			e, err := decodeToken(a, path+".args."+name)
			if err != nil {
				return nil, err
			}
			step.Args[name] = e
		}
	}
	return step, nil
}

var columnKeys = map[string]bool{"as": true, "cast": true, "expand": true, "inline": true}

func decodeColumn(raw json.RawMessage, path string) (*Column, error) {
	if firstByte(raw) == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, decodeErr(path, "%v", err)
		}
		if s != "*" {
			return nil, decodeErr(path, "unexpected column %q", s)
		}
		return &Column{Star: true}, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, decodeErr(path, "column must be \"*\" or an object")
	}
	col := &Column{}

	if a, ok := m["as"]; ok {
		if err := json.Unmarshal(a, &col.As); err != nil {
			return nil, decodeErr(path+".as", "alias must be a string")
		}
	}
	if c, ok := m["cast"]; ok {
		var cast struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(c, &cast); err != nil || cast.Type == "" {
			return nil, decodeErr(path+".cast", "cast needs a type")
		}
		col.Cast = cast.Type
	}
	var err error
	if e, ok := m["expand"]; ok {
		if col.Expand, err = decodeNested(e, path+".expand"); err != nil {
			return nil, err
		}
	}
	if in, ok := m["inline"]; ok {
		if col.Inline, err = decodeNested(in, path+".inline"); err != nil {
			return nil, err
		}
	}

	exprPart := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		if !columnKeys[k] {
			exprPart[k] = v
		}
	}
	if col.Expr, err = decodeExprObject(exprPart, path); err != nil {
		return nil, err
	}
	return col, nil
}

// decodeNested keeps a present-but-empty projection non-nil so that
// `expand: []` still reads as an expand.
func decodeNested(raw json.RawMessage, path string) ([]*Column, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, decodeErr(path, "nested projection must be an array")
	}
	cols := make([]*Column, 0, len(items))
	for i, it := range items {
		c, err := decodeColumn(it, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func decodeOrderBy(raw json.RawMessage, path string) (*OrderBy, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, decodeErr(path, "order term must be an object")
	}
	ob := &OrderBy{}
	if s, ok := m["sort"]; ok {
		var dir string
		if err := json.Unmarshal(s, &dir); err != nil {
			return nil, decodeErr(path+".sort", "sort must be a string")
		}
		switch strings.ToLower(dir) {
		case "asc":
		case "desc":
			ob.Desc = true
		default:
			return nil, decodeErr(path+".sort", "unknown sort direction %q", dir)
		}
		delete(m, "sort")
	}
	if n, ok := m["nulls"]; ok {
		if err := json.Unmarshal(n, &ob.Nulls); err != nil {
			return nil, decodeErr(path+".nulls", "nulls must be a string")
		}
		ob.Nulls = strings.ToLower(ob.Nulls)
		delete(m, "nulls")
	}
	var err error
	if ob.Expr, err = decodeExprObject(m, path); err != nil {
		return nil, err
	}
	return ob, nil
}

// decodeClause decodes where/having/on and step filters. Arrays become an
// Xpr; a single expression object is accepted as well.
func decodeClause(raw json.RawMessage, path string) (Expr, error) {
	if isNull(raw) {
		return nil, nil
	}
	switch firstByte(raw) {
	case '[':
		items, err := decodeTokens(raw, path)
		if err != nil {
			return nil, err
		}
		return &Xpr{Items: items}, nil
	case '{':
		return decodeToken(raw, path)
	default:
		return nil, decodeErr(path, "expected an expression array or object")
	}
}

func decodeTokens(raw json.RawMessage, path string) ([]Expr, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, decodeErr(path, "expected an array")
	}
	exprs := make([]Expr, 0, len(items))
	for i, it := range items {
		e, err := decodeToken(it, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

// decodeToken decodes one xpr token: a string is a Keyword, an array a
// nested Xpr, an object an expression, anything else a bare literal.
func decodeToken(raw json.RawMessage, path string) (Expr, error) {
	switch firstByte(raw) {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, decodeErr(path, "%v", err)
		}
		return Keyword(s), nil
	case '[':
		items, err := decodeTokens(raw, path)
		if err != nil {
			return nil, err
		}
		return &Xpr{Items: items}, nil
	case '{':
		var m map[string]json.RawMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, decodeErr(path, "%v", err)
		}
		return decodeExprObject(m, path)
	default:
		v, err := ir.UnmarshalIRValue(raw)
		if err != nil {
			return nil, decodeErr(path, "%v", err)
		}
		return &Val{Value: v}, nil
	}
}

func decodeExprObject(m map[string]json.RawMessage, path string) (Expr, error) {
	switch {
	case m["ref"] != nil:
		ref, err := decodeRef(m["ref"], path+".ref")
		if err != nil {
			return nil, err
		}
		if p, ok := m["param"]; ok && string(bytes.TrimSpace(p)) == "true" {
			return &Param{Name: strings.Join(ref.IDs(), ".")}, nil
		}
		if len(ref.Steps) == 0 {
			return nil, decodeErr(path+".ref", "empty path")
		}
		return ref, nil

	case m["val"] != nil:
		v, err := ir.UnmarshalIRValue(m["val"])
		if err != nil {
			return nil, decodeErr(path+".val", "%v", err)
		}
		return &Val{Value: v}, nil

	case m["func"] != nil:
		f := &Func{}
		if err := json.Unmarshal(m["func"], &f.Name); err != nil {
			return nil, decodeErr(path+".func", "function name must be a string")
		}
		if a, ok := m["args"]; ok && !isNull(a) {
			args, err := decodeTokens(a, path+".args")
			if err != nil {
				return nil, err
			}
			f.Args = args
		}
		return f, nil

	case m["xpr"] != nil:
		items, err := decodeTokens(m["xpr"], path+".xpr")
		if err != nil {
			return nil, err
		}
		return &Xpr{Items: items}, nil

	case m["list"] != nil:
		items, err := decodeTokens(m["list"], path+".list")
		if err != nil {
			return nil, err
		}
		return &List{Items: items}, nil

	case m["SELECT"] != nil:
		sel, err := decodeSelect(m["SELECT"], path+".SELECT")
		if err != nil {
			return nil, err
		}
		return &SubQuery{Query: sel}, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return nil, decodeErr(path, "unknown expression with keys %v", keys)
}
