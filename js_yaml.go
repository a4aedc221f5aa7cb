package engine

import (
	"fmt"

	"github.com/dop251/goja"
	"gopkg.in/yaml.v3"
)

// loadYAMLModule backs require("yaml") with parse and stringify.
func loadYAMLModule(e *JsEngine, module *goja.Object) error {
	exports := module.Get("exports").ToObject(e.vm)
	if err := exports.Set("parse", e.wrapHostFunc("yaml.parse", yamlParse)); err != nil {
		return err
	}
	return exports.Set("stringify", e.wrapHostFunc("yaml.stringify", yamlStringify))
}

func yamlParse(source string) (interface{}, error) {
	var out interface{}
	if err := yaml.Unmarshal([]byte(source), &out); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return out, nil
}

func yamlStringify(value interface{}) (string, error) {
	out, err := yaml.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encoding yaml: %w", err)
	}
	return string(out), nil
}
