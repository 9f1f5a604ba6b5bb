package vapimetrics

// Nil-safe helpers over decoded JSON objects. Reads from a nil object resolve
// to "absent", so candidate lists can name scopes that may not exist.

func str(v any) string {
	s, _ := v.(string)
	return s
}

func childOr(o object, key string, fallback object) object {
	if o == nil {
		return fallback
	}
	if m, ok := o[key].(map[string]any); ok {
		return object(m)
	}
	return fallback
}

func firstChild(refs []ref, fallback object) object {
	for _, r := range refs {
		if r.o == nil {
			continue
		}
		if m, ok := r.o[r.key].(map[string]any); ok {
			return object(m)
		}
	}
	return fallback
}

func firstValue(refs ...ref) any {
	for _, r := range refs {
		if r.o == nil {
			continue
		}
		if v, ok := r.o[r.key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstArray(refs ...ref) []any {
	if arr, ok := firstValue(refs...).([]any); ok {
		return arr
	}
	return nil
}

func firstNumber(refs ...ref) *float64 {
	for _, r := range refs {
		if r.o == nil {
			continue
		}
		if n, ok := r.o[r.key].(float64); ok {
			return &n
		}
	}
	return nil
}

func firstString(refs ...ref) *string {
	for _, r := range refs {
		if r.o == nil {
			continue
		}
		if s, ok := r.o[r.key].(string); ok && s != "" {
			return &s
		}
	}
	return nil
}

func setNum(dst **float64, v any) {
	if n, ok := v.(float64); ok {
		*dst = &n
	}
}

func setInt(dst **int, v any) {
	if n, ok := v.(float64); ok {
		i := int(n)
		*dst = &i
	}
}

func setStr(dst **string, v any) {
	if s, ok := v.(string); ok && s != "" {
		*dst = &s
	}
}

func setNumIfNil(dst **float64, v float64) {
	if *dst == nil {
		*dst = &v
	}
}

func setNumFirstIfNil(dst **float64, refs ...ref) {
	if *dst != nil {
		return
	}
	if n := firstNumber(refs...); n != nil {
		*dst = n
	}
}

func setIntFirstIfNil(dst **int, refs ...ref) {
	if *dst != nil {
		return
	}
	for _, r := range refs {
		if r.o == nil {
			continue
		}
		if n, ok := r.o[r.key].(float64); ok {
			i := int(n)
			*dst = &i
			return
		}
	}
}

func setStrFirstIfNil(dst **string, refs ...ref) {
	if *dst != nil {
		return
	}
	if s := firstString(refs...); s != nil {
		*dst = s
	}
}
