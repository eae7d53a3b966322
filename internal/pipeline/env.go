package pipeline

import (
	"os"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// environ returns the process environment as the `env` map expressions see.
func environ() cty.Value {
	vars := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		pair := strings.SplitN(e, "=", 2)
		if len(pair) == 2 && pair[0] != "" {
			vars[pair[0]] = cty.StringVal(pair[1])
		}
	}
	if len(vars) == 0 {
		return cty.MapValEmpty(cty.String)
	}
	return cty.MapVal(vars)
}
