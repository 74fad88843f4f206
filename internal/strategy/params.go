package strategy

import "github.com/spf13/cast"

// ParamFloat reads a numeric param. YAML ints, floats and env override
// strings such as "0.5" are all accepted; anything else yields def.
func ParamFloat(params map[string]any, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// ParamInt reads an integer param.
func ParamInt(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

// ParamStrings reads a list of strings.
func ParamStrings(params map[string]any, key string) []string {
	v, ok := params[key]
	if !ok {
		return nil
	}
	out, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil
	}
	return out
}
