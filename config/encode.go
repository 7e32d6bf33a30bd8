package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Formats supported by Marshal
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatTOML = "toml"
)

// Marshal returns the configuration in the format: yaml|json|toml.
// YAML output carries the `comment` tags of the fields as head comments.
func Marshal(cfg *Config, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatYAML, "yml", "":
		node, err := structToYAMLWithComments(reflect.ValueOf(cfg))
		if err != nil {
			return nil, err
		}
		var b bytes.Buffer
		enc := yaml.NewEncoder(&b)
		enc.SetIndent(2)
		if err = enc.Encode(node); err != nil {
			return nil, errors.WithStack(err)
		}
		_ = enc.Close()
		return b.Bytes(), nil
	case FormatJSON:
		b, err := json.MarshalIndent(cfg, "", "  ")
		return b, errors.WithStack(err)
	case FormatTOML:
		var b bytes.Buffer
		if err := toml.NewEncoder(&b).Encode(cfg); err != nil {
			return nil, errors.WithStack(err)
		}
		return b.Bytes(), nil
	}
	return nil, errors.Errorf("unsupported format: %s", format)
}

var yamlMarshalerType = reflect.TypeFor[yaml.Marshaler]()

func structToYAMLWithComments(val reflect.Value) (*yaml.Node, error) {
	val = dereference(val)
	if !val.IsValid() {
		return nullNode(), nil
	}
	if val.Kind() != reflect.Struct {
		return nil, errors.Errorf("expected struct, got %s", val.Kind())
	}

	typ := val.Type()
	root := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty := parseTag(field.Tag.Get("yaml"))
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		fv := val.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}

		valueNode, err := valueToYAMLNode(fv)
		if err != nil {
			return nil, errors.WithMessagef(err, "field %s", field.Name)
		}
		keyNode := &yaml.Node{
			Kind:        yaml.ScalarNode,
			Value:       name,
			HeadComment: field.Tag.Get("comment"),
		}
		root.Content = append(root.Content, keyNode, valueNode)
	}
	return root, nil
}

func valueToYAMLNode(v reflect.Value) (*yaml.Node, error) {
	if v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nullNode(), nil
		}
		v = v.Elem()
	}

	if v.Type().Implements(yamlMarshalerType) {
		out, err := v.Interface().(yaml.Marshaler).MarshalYAML()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		node := new(yaml.Node)
		return node, errors.WithStack(node.Encode(out))
	}

	switch v.Kind() {
	case reflect.String:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v.String(), Tag: "!!str"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatInt(v.Int(), 10), Tag: "!!int"}, nil
	case reflect.Float32, reflect.Float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatFloat(v.Float(), 'f', -1, 64), Tag: "!!float"}, nil
	case reflect.Bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: strconv.FormatBool(v.Bool()), Tag: "!!bool"}, nil
	case reflect.Struct:
		return structToYAMLWithComments(v)
	case reflect.Map:
		node := &yaml.Node{Kind: yaml.MappingNode}
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, key := range keys {
			valueNode, err := valueToYAMLNode(v.MapIndex(key))
			if err != nil {
				return nil, err
			}
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprint(key.Interface())}
			node.Content = append(node.Content, keyNode, valueNode)
		}
		return node, nil
	case reflect.Slice, reflect.Array:
		node := &yaml.Node{Kind: yaml.SequenceNode}
		for i := 0; i < v.Len(); i++ {
			item, err := valueToYAMLNode(v.Index(i))
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, item)
		}
		return node, nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprintf("%v", v.Interface())}, nil
}

func parseTag(tag string) (string, bool) {
	name, opts, _ := strings.Cut(tag, ",")
	return name, strings.Contains(opts, "omitempty")
}

func nullNode() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: "null", Tag: "!!null"}
}

// dereference pointers until v is not a pointer
func dereference(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}
