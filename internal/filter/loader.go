package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/log"
)

// ruleRecord is one element of a rule document. Pointer fields tell an
// absent key from a zero value.
type ruleRecord struct {
	IP      *string `mapstructure:"ip"`
	Port    *int64  `mapstructure:"port"`
	Block   *bool   `mapstructure:"block"`
	Comment *string `mapstructure:"comment"`
}

// Load decodes a JSON rule document: an array of objects with optional ip,
// port, block and comment keys. An entry with an unparsable IPv4 address is
// skipped with a warning. Any structural problem fails the whole document
// with an error wrapping core.ErrInvalidRuleDocument.
func Load(doc []byte) (RuleSet, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRuleDocument, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after rule array", core.ErrInvalidRuleDocument)
	}
	return fromDocument(raw)
}

// LoadYAML decodes the same record schema from a YAML sequence.
func LoadYAML(doc []byte) (RuleSet, error) {
	var raw any
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRuleDocument, err)
	}
	return fromDocument(raw)
}

// LoadFile reads a rule file. Files ending in .yaml or .yml are decoded as
// YAML, everything else as JSON.
func LoadFile(path string) (RuleSet, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %s: %w", path, err)
	}

	var rs RuleSet
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		rs, err = LoadYAML(doc)
	default:
		rs, err = Load(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return rs, nil
}

func fromDocument(raw any) (RuleSet, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: document is not an array", core.ErrInvalidRuleDocument)
	}

	rs := make(RuleSet, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d is not an object", core.ErrInvalidRuleDocument, i)
		}

		if key, ok := nullField(fields); ok {
			if key != "ip" {
				return nil, fmt.Errorf("%w: entry %d: %s is null", core.ErrInvalidRuleDocument, i, key)
			}
			log.GetLogger().WithField("index", i).Warn("invalid IP in rule: null")
			continue
		}

		var rec ruleRecord
		if err := decodeRecord(fields, &rec); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", core.ErrInvalidRuleDocument, i, err)
		}

		rule, err := rec.rule()
		if errors.Is(err, errSkipRule) {
			log.GetLogger().WithField("index", i).Warnf("invalid IP in rule: %s", *rec.IP)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", core.ErrInvalidRuleDocument, i, err)
		}
		rs = append(rs, rule)
	}
	return rs, nil
}

// nullField reports a schema key that is present with a null value. A
// null port, block or comment wins over a null ip.
func nullField(fields map[string]any) (string, bool) {
	found := ""
	for _, key := range []string{"ip", "port", "block", "comment"} {
		if v, ok := fields[key]; ok && v == nil {
			if key != "ip" {
				return key, true
			}
			found = key
		}
	}
	return found, found != ""
}

func decodeRecord(fields map[string]any, rec *ruleRecord) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: rejectNumberAsString,
		Result:     rec,
		TagName:    "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}

// rejectNumberAsString stops json.Number, itself a string kind, from
// decoding into string fields.
func rejectNumberAsString(from, to reflect.Type, data any) (any, error) {
	if from == reflect.TypeOf(json.Number("")) && to.Kind() == reflect.String {
		return nil, fmt.Errorf("expected string, got number %v", data)
	}
	return data, nil
}

var errSkipRule = errors.New("skip rule")

func (rec *ruleRecord) rule() (Rule, error) {
	r := Rule{Block: true}

	if rec.IP != nil {
		addr, err := netip.ParseAddr(*rec.IP)
		if err != nil || !addr.Is4() {
			return r, errSkipRule
		}
		r.IP = Some(addr)
	}
	if rec.Port != nil {
		if *rec.Port < 0 || *rec.Port > 65535 {
			return r, fmt.Errorf("port %d out of range 0-65535", *rec.Port)
		}
		r.Port = Some(uint16(*rec.Port))
	}
	if rec.Block != nil {
		r.Block = *rec.Block
	}
	if rec.Comment != nil {
		r.Comment = *rec.Comment
	}
	return r, nil
}
