package policy

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a policy from path. Files ending in .yaml or .yml are parsed
// as YAML, everything else as CSV.
func LoadFile(path string) (Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return Policy{}, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return LoadCSV(f)
	}
}

// LoadCSV parses casbin-style policy lines:
//
//	p, subject, domain, object, action
//	p, subject, object, action          (domain defaults to "*")
//	g, role, inherited-role
//
// Blank lines and lines starting with "#" are ignored.
func LoadCSV(r io.Reader) (Policy, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	p := Policy{Inherits: map[string][]string{}}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Policy{}, err
		}
		line, _ := reader.FieldPos(0)

		for i := range record {
			record[i] = strings.TrimSpace(record[i])
		}
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}

		switch record[0] {
		case "p":
			switch len(record) {
			case 5:
				p.Rules = append(p.Rules, Rule{Subject: record[1], Domain: record[2], Object: record[3], Action: record[4]})
			case 4:
				p.Rules = append(p.Rules, Rule{Subject: record[1], Domain: Wildcard, Object: record[2], Action: record[3]})
			default:
				return Policy{}, fmt.Errorf("%w: line %d: p needs 3 or 4 fields", ErrInvalidRule, line)
			}
		case "g":
			if len(record) != 3 {
				return Policy{}, fmt.Errorf("%w: line %d: g needs 2 fields", ErrInvalidRule, line)
			}
			p.Inherits[record[1]] = append(p.Inherits[record[1]], record[2])
		default:
			return Policy{}, fmt.Errorf("%w: line %d: unknown section %q", ErrInvalidRule, line, record[0])
		}
	}
	return p, nil
}

// LoadYAML parses a document of the form:
//
//	inherits:
//	  superadmin: [admin]
//	rules:
//	  - {subject: anon, domain: "*", object: /auth/*, action: POST}
func LoadYAML(r io.Reader) (Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return Policy{}, nil
		}
		return Policy{}, err
	}
	return p, nil
}
