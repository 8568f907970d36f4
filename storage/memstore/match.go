package memstore

import (
	"bytes"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// normalize round-trips v through BSON so that filters, updates and stored documents
// share one value representation: named string types become string, time.Time becomes
// primitive.DateTime, slices become primitive.A and sub-documents become bson.M.
func normalize(v interface{}) (bson.M, error) {
	if m, ok := v.(bson.M); ok && len(m) == 0 {
		return bson.M{}, nil
	}
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = bson.M{}
	}
	return m, nil
}

func asDoc(v interface{}) (bson.M, bool) {
	switch d := v.(type) {
	case bson.M:
		return d, true
	case map[string]interface{}:
		return bson.M(d), true
	case bson.D:
		m := make(bson.M, len(d))
		for _, e := range d {
			m[e.Key] = e.Value
		}
		return m, true
	}
	return nil, false
}

func asArray(v interface{}) (primitive.A, bool) {
	switch a := v.(type) {
	case primitive.A:
		return a, true
	case []interface{}:
		return primitive.A(a), true
	}
	return nil, false
}

func isOperatorDoc(v interface{}) (bson.M, bool) {
	d, ok := asDoc(v)
	if !ok || len(d) == 0 {
		return nil, false
	}
	for k := range d {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return d, true
}

// lookup resolves a dotted path. Paths that cross an array collect the values from
// every element, the way MongoDB queries on "items.field" do.
func lookup(doc bson.M, path string) (interface{}, bool) {
	return lookupParts(doc, strings.Split(path, "."))
}

func lookupParts(cur interface{}, parts []string) (interface{}, bool) {
	if len(parts) == 0 {
		return cur, true
	}
	if arr, ok := asArray(cur); ok {
		var out primitive.A
		for _, el := range arr {
			v, ok := lookupParts(el, parts)
			if !ok {
				continue
			}
			if sub, isArr := asArray(v); isArr {
				out = append(out, sub...)
			} else {
				out = append(out, v)
			}
		}
		return out, len(out) > 0
	}
	d, ok := asDoc(cur)
	if !ok {
		return nil, false
	}
	v, ok := d[parts[0]]
	if !ok {
		return nil, false
	}
	return lookupParts(v, parts[1:])
}

// matches reports whether doc satisfies filter. Both must already be normalized.
func matches(doc, filter bson.M) (bool, error) {
	for key, cond := range filter {
		switch key {
		case "$or", "$and", "$nor":
			clauses, ok := asArray(cond)
			if !ok {
				return false, fmt.Errorf("%s expects an array", key)
			}
			hits := 0
			for _, c := range clauses {
				sub, ok := asDoc(c)
				if !ok {
					return false, fmt.Errorf("%s clause must be a document", key)
				}
				hit, err := matches(doc, sub)
				if err != nil {
					return false, err
				}
				if hit {
					hits++
				}
			}
			switch key {
			case "$or":
				if hits == 0 {
					return false, nil
				}
			case "$and":
				if hits != len(clauses) {
					return false, nil
				}
			case "$nor":
				if hits > 0 {
					return false, nil
				}
			}
			continue
		}

		val, exists := lookup(doc, key)
		ok, err := matchValue(val, exists, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchValue(val interface{}, exists bool, cond interface{}) (bool, error) {
	ops, isOps := isOperatorDoc(cond)
	if !isOps {
		return matchEq(val, exists, cond), nil
	}

	for op, arg := range ops {
		var ok bool
		switch op {
		case "$eq":
			ok = matchEq(val, exists, arg)
		case "$ne":
			ok = !matchEq(val, exists, arg)
		case "$in", "$nin":
			list, isArr := asArray(arg)
			if !isArr {
				return false, fmt.Errorf("%s expects an array", op)
			}
			for _, item := range list {
				if matchEq(val, exists, item) {
					ok = true
					break
				}
			}
			if op == "$nin" {
				ok = !ok
			}
		case "$gt", "$gte", "$lt", "$lte":
			if !exists {
				break
			}
			ok = anyElement(val, func(v interface{}) bool {
				c, comparable := compare(v, arg)
				if !comparable {
					return false
				}
				switch op {
				case "$gt":
					return c > 0
				case "$gte":
					return c >= 0
				case "$lt":
					return c < 0
				default:
					return c <= 0
				}
			})
		case "$exists":
			want, _ := arg.(bool)
			ok = exists == want
		case "$regex":
			pattern, _ := arg.(string)
			if opts, has := ops["$options"].(string); has && strings.Contains(opts, "i") {
				pattern = "(?i)" + pattern
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return false, fmt.Errorf("invalid $regex: %w", err)
			}
			ok = anyElement(val, func(v interface{}) bool {
				s, isStr := v.(string)
				return isStr && re.MatchString(s)
			})
		case "$options":
			ok = true
		case "$size":
			arr, isArr := asArray(val)
			n, isNum := toFloat(arg)
			ok = isArr && isNum && float64(len(arr)) == n
		default:
			return false, fmt.Errorf("unsupported operator %s", op)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// anyElement applies pred to val, or to each element when val is an array.
func anyElement(val interface{}, pred func(interface{}) bool) bool {
	if arr, ok := asArray(val); ok {
		for _, v := range arr {
			if pred(v) {
				return true
			}
		}
		return false
	}
	return pred(val)
}

// matchEq follows MongoDB equality: a null target matches a missing field and an
// array field matches when any element equals the target.
func matchEq(val interface{}, exists bool, target interface{}) bool {
	if target == nil {
		return !exists || val == nil
	}
	if !exists {
		return false
	}
	if equal(val, target) {
		return true
	}
	if arr, ok := asArray(val); ok {
		if _, targetIsArr := asArray(target); !targetIsArr {
			for _, v := range arr {
				if equal(v, target) {
					return true
				}
			}
		}
	}
	return false
}

func equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	if aa, ok := asArray(a); ok {
		ba, ok := asArray(b)
		if !ok || len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !equal(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}
	if ad, ok := asDoc(a); ok {
		bd, ok := asDoc(b)
		if !ok || len(ad) != len(bd) {
			return false
		}
		for k, v := range ad {
			w, has := bd[k]
			if !has || !equal(v, w) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// compare orders two scalar values of the same BSON kind. The second result is
// false when the values are not comparable.
func compare(a, b interface{}) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case primitive.DateTime:
		bv, ok := b.(primitive.DateTime)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case primitive.ObjectID:
		bv, ok := b.(primitive.ObjectID)
		if !ok {
			return 0, false
		}
		return bytes.Compare(av[:], bv[:]), true
	}
	return 0, false
}

// sortCompare orders values for Find sorting: missing and null sort first.
func sortCompare(a interface{}, aok bool, b interface{}, bok bool) int {
	aNull := !aok || a == nil
	bNull := !bok || b == nil
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return -1
	case bNull:
		return 1
	}
	if c, ok := compare(a, b); ok {
		return c
	}
	return strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b))
}
