package cqn

import (
	"sort"
	"strings"

	"github.com/roach88/qinfer/internal/ir"
)

// String renders a path the way users write it: `author.books[stock > 5].title`.
func (r *Ref) String() string {
	var b strings.Builder
	for i, s := range r.Steps {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.ID)
		if len(s.Args) > 0 {
			names := make([]string, 0, len(s.Args))
			for name := range s.Args {
				names = append(names, name)
			}
			sort.Strings(names)
			b.WriteByte('(')
			for j, name := range names {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(name)
				b.WriteString(": ")
				b.WriteString(Format(s.Args[name]))
			}
			b.WriteByte(')')
		}
		if s.Where != nil {
			b.WriteByte('[')
			b.WriteString(Format(s.Where))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Format renders an expression for error messages and CLI output.
// The output is readable, not a parseable query language.
func Format(e Expr) string {
	switch v := e.(type) {
	case nil:
		return ""
	case Keyword:
		return string(v)
	case *Ref:
		return v.String()
	case *Val:
		return formatValue(v.Value)
	case *Param:
		if v.Name == "?" {
			return "?"
		}
		return ":" + v.Name
	case *Func:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = Format(a)
		}
		return v.Name + "(" + strings.Join(args, ", ") + ")"
	case *Xpr:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = Format(it)
		}
		return strings.Join(parts, " ")
	case *List:
		parts := make([]string, len(v.Items))
		for i, it := range v.Items {
			parts[i] = Format(it)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *SubQuery:
		return "(SELECT from " + FormatSource(v.Query.From) + ")"
	default:
		return "?"
	}
}

// FormatSource renders a source for messages.
func FormatSource(src Source) string {
	switch v := src.(type) {
	case *EntitySource:
		if v.As != "" {
			return v.Ref.String() + " as " + v.As
		}
		return v.Ref.String()
	case *SubQuerySource:
		return "(SELECT from " + FormatSource(v.Query.From) + ") as " + v.Alias()
	case *JoinSource:
		parts := make([]string, len(v.Args))
		for i, a := range v.Args {
			parts[i] = FormatSource(a)
		}
		return strings.Join(parts, " "+v.Kind+" join ")
	default:
		return ""
	}
}

func formatValue(v ir.IRValue) string {
	switch val := v.(type) {
	case ir.IRString:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'"
	default:
		b, err := ir.MarshalIRValue(v)
		if err != nil {
			return "?"
		}
		return string(b)
	}
}
