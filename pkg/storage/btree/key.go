package btree

import (
	"cmp"
	"fmt"
)

// Key is one composite key. Components are nil, bool, integer, floating
// point or string values.
type Key []any

func (k Key) String() string {
	return fmt.Sprint([]any(k))
}

func (k Key) hasNull() bool {
	for _, v := range k {
		if v == nil {
			return true
		}
	}
	return false
}

// rank orders values of different kinds: nulls first, then booleans,
// numbers and strings.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int8, int16, int32, int64, uint8, uint16, uint32, float32, float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func compareValue(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case string:
		return cmp.Compare(av, b.(string))
	default:
		if ra == 2 {
			return cmp.Compare(toFloat(a), toFloat(b))
		}
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

// compareKeys compares two keys column by column under the index spec.
func (s IndexSpec) compareKeys(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		c := compareValue(a[i], b[i])
		if i < len(s.Descending) && s.Descending[i] {
			c = -c
		}
		if c != 0 {
			if s.Reverse {
				return -c
			}
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// normalize applies prefix lengths to string components.
func (s IndexSpec) normalize(k Key) Key {
	out := make(Key, len(k))
	copy(out, k)
	for i, v := range out {
		str, ok := v.(string)
		if !ok || i >= len(s.PrefixLengths) || s.PrefixLengths[i] <= 0 {
			continue
		}
		if r := []rune(str); len(r) > s.PrefixLengths[i] {
			out[i] = string(r[:s.PrefixLengths[i]])
		}
	}
	return out
}
