package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type staticFile struct {
	Tables []*Table `yaml:"tables"`
}

// ParseStaticYAML читает описание таблиц:
//
//	tables:
//	  - name: books
//	    primary_key: [id]
//	    columns: [{name: id, type: integer}, ...]
//	    foreign_keys: [{columns: [authorid], ref_table: authors, ref_columns: [id]}]
func ParseStaticYAML(data []byte) (*Static, error) {
	var f staticFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("schema yaml: %w", err)
	}
	for i, t := range f.Tables {
		if t == nil || t.Name == "" {
			return nil, fmt.Errorf("schema yaml: table #%d has no name", i)
		}
	}
	return NewStatic(f.Tables...), nil
}

func LoadStaticYAML(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseStaticYAML(data)
}
