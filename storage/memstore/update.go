package memstore

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// applyUpdate mutates doc with the update operators in update. Both must be normalized.
func applyUpdate(doc, update bson.M) error {
	if len(update) == 0 {
		return fmt.Errorf("update document is empty")
	}
	for op, arg := range update {
		fields, ok := asDoc(arg)
		if !ok {
			return fmt.Errorf("%s expects a document", op)
		}
		for path, v := range fields {
			if path == "_id" && op != "$setOnInsert" {
				return fmt.Errorf("field _id is immutable")
			}
			var err error
			switch op {
			case "$set":
				err = setPath(doc, path, v)
			case "$unset":
				unsetPath(doc, path)
			case "$inc":
				err = incPath(doc, path, v)
			case "$push":
				err = pushPath(doc, path, v, false)
			case "$addToSet":
				err = pushPath(doc, path, v, true)
			case "$pull":
				err = pullPath(doc, path, v)
			default:
				if !strings.HasPrefix(op, "$") {
					return fmt.Errorf("replacement documents are not supported, use update operators")
				}
				return fmt.Errorf("unsupported update operator %s", op)
			}
			if err != nil {
				return fmt.Errorf("%s %s: %w", op, path, err)
			}
		}
	}
	return nil
}

// parent walks to the document holding the last path segment, creating
// intermediate documents when create is set.
func parent(doc bson.M, path string, create bool) (bson.M, string, error) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok || next == nil {
			if !create {
				return nil, "", nil
			}
			nd := bson.M{}
			cur[p] = nd
			cur = nd
			continue
		}
		nd, ok := asDoc(next)
		if !ok {
			return nil, "", fmt.Errorf("cannot traverse non-document field %s", p)
		}
		cur[p] = nd
		cur = nd
	}
	return cur, parts[len(parts)-1], nil
}

func setPath(doc bson.M, path string, v interface{}) error {
	p, last, err := parent(doc, path, true)
	if err != nil {
		return err
	}
	p[last] = v
	return nil
}

func unsetPath(doc bson.M, path string) {
	p, last, err := parent(doc, path, false)
	if err != nil || p == nil {
		return
	}
	delete(p, last)
}

func incPath(doc bson.M, path string, v interface{}) error {
	delta, ok := toFloat(v)
	if !ok {
		return fmt.Errorf("increment must be numeric")
	}
	p, last, err := parent(doc, path, true)
	if err != nil {
		return err
	}
	cur, has := p[last]
	if !has || cur == nil {
		p[last] = v
		return nil
	}
	switch n := cur.(type) {
	case int32:
		p[last] = int32(float64(n) + delta)
	case int64:
		p[last] = int64(float64(n) + delta)
	case float64:
		p[last] = n + delta
	default:
		return fmt.Errorf("cannot increment non-numeric field")
	}
	return nil
}

func arrayAt(p bson.M, last string) (primitive.A, error) {
	cur, has := p[last]
	if !has || cur == nil {
		return primitive.A{}, nil
	}
	arr, ok := asArray(cur)
	if !ok {
		return nil, fmt.Errorf("field is not an array")
	}
	out := make(primitive.A, len(arr))
	copy(out, arr)
	return out, nil
}

func pushPath(doc bson.M, path string, v interface{}, unique bool) error {
	p, last, err := parent(doc, path, true)
	if err != nil {
		return err
	}
	arr, err := arrayAt(p, last)
	if err != nil {
		return err
	}

	items := primitive.A{v}
	if mods, ok := isOperatorDoc(v); ok {
		each, has := mods["$each"]
		if !has {
			return fmt.Errorf("unsupported modifier")
		}
		if items, ok = asArray(each); !ok {
			return fmt.Errorf("$each expects an array")
		}
	}

	for _, item := range items {
		if unique && containsValue(arr, item) {
			continue
		}
		arr = append(arr, item)
	}
	p[last] = arr
	return nil
}

func pullPath(doc bson.M, path string, cond interface{}) error {
	p, last, err := parent(doc, path, false)
	if err != nil || p == nil {
		return err
	}
	if cur, has := p[last]; !has || cur == nil {
		return nil
	}
	arr, err := arrayAt(p, last)
	if err != nil {
		return err
	}
	kept := make(primitive.A, 0, len(arr))
	query, isQuery := asDoc(cond)
	if _, isOps := isOperatorDoc(cond); isOps {
		isQuery = false
	}
	for _, item := range arr {
		var hit bool
		var err error
		if elem, isDoc := asDoc(item); isDoc && isQuery {
			hit, err = matches(elem, query)
		} else {
			hit, err = matchValue(item, true, cond)
		}
		if err != nil {
			return err
		}
		if !hit {
			kept = append(kept, item)
		}
	}
	p[last] = kept
	return nil
}

func containsValue(arr primitive.A, v interface{}) bool {
	for _, item := range arr {
		if equal(item, v) {
			return true
		}
	}
	return false
}
