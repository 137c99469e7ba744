package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultRichEmbedColor is used for embed headers when richEmbedColor is unset.
const DefaultRichEmbedColor = 30975

var (
	errNotArray          = errors.New("not formatted as an array")
	errRedirectsNotArray = errors.New("redirects are not properly formatted (missing array)")
)

// Redirect relays every message seen in one of Sources to each of
// Destinations.
type Redirect struct {
	Sources      IDList          `json:"sources"      yaml:"sources"`
	Destinations IDList          `json:"destinations" yaml:"destinations"`
	Options      RedirectOptions `json:"options"      yaml:"options"`
}

// RedirectOptions tune how a redirect filters and rewrites messages. Zero
// values mean "not set".
type RedirectOptions struct {
	AllowList       IDList `json:"allowList,omitempty"       yaml:"allowList,omitempty"`
	MinLength       int    `json:"minLength,omitempty"       yaml:"minLength,omitempty"`
	Title           string `json:"title,omitempty"           yaml:"title,omitempty"`
	IncludeSource   bool   `json:"includeSource,omitempty"   yaml:"includeSource,omitempty"`
	RichEmbed       bool   `json:"richEmbed,omitempty"       yaml:"richEmbed,omitempty"`
	RichEmbedColor  int    `json:"richEmbedColor,omitempty"  yaml:"richEmbedColor,omitempty"`
	CopyRichEmbed   bool   `json:"copyRichEmbed,omitempty"   yaml:"copyRichEmbed,omitempty"`
	RemoveEveryone  bool   `json:"removeEveryone,omitempty"  yaml:"removeEveryone,omitempty"`
	RemoveHere      bool   `json:"removeHere,omitempty"      yaml:"removeHere,omitempty"`
	CopyAttachments bool   `json:"copyAttachments,omitempty" yaml:"copyAttachments,omitempty"`
}

// Color returns the configured embed color or DefaultRichEmbedColor.
func (o RedirectOptions) Color() int {
	if o.RichEmbedColor != 0 {
		return o.RichEmbedColor
	}
	return DefaultRichEmbedColor
}

// Allows reports whether a message by userID passes the allow-list. An
// empty allow-list lets everyone through.
func (o RedirectOptions) Allows(userID string) bool {
	if len(o.AllowList) == 0 {
		return true
	}
	return o.AllowList.Contains(userID)
}

func (r Redirect) problems(prefix string) []string {
	var errs []string
	if len(r.Sources) == 0 {
		errs = append(errs, prefix+": redirect has no sources")
	}
	if len(r.Destinations) == 0 {
		errs = append(errs, prefix+": redirect has no destinations")
	}
	for _, src := range r.Sources {
		if r.Destinations.Contains(src) {
			errs = append(errs, fmt.Sprintf("%s: source %s is also a destination, this would loop forever", prefix, src))
		}
	}
	if r.Options.MinLength < 0 {
		errs = append(errs, prefix+": options.minLength must not be negative")
	}
	if r.Options.RichEmbedColor < 0 || r.Options.RichEmbedColor > 0xFFFFFF {
		errs = append(errs, prefix+": options.richEmbedColor must be between 0 and 16777215")
	}
	return errs
}

func (r *Redirect) UnmarshalJSON(data []byte) error {
	var raw struct {
		Sources      json.RawMessage `json:"sources"`
		Destinations json.RawMessage `json:"destinations"`
		Options      json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Redirect
	if err := out.Sources.decodeJSON(raw.Sources); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	if err := out.Destinations.decodeJSON(raw.Destinations); err != nil {
		return fmt.Errorf("destinations: %w", err)
	}
	if isJSONValue(raw.Options) {
		if err := json.Unmarshal(raw.Options, &out.Options); err != nil {
			return fmt.Errorf("options: %w", err)
		}
	}
	*r = out
	return nil
}

func (r *Redirect) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Sources      yaml.Node       `yaml:"sources"`
		Destinations yaml.Node       `yaml:"destinations"`
		Options      RedirectOptions `yaml:"options"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	out := Redirect{Options: raw.Options}
	if err := out.Sources.decodeYAML(&raw.Sources); err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	if err := out.Destinations.decodeYAML(&raw.Destinations); err != nil {
		return fmt.Errorf("destinations: %w", err)
	}
	*r = out
	return nil
}

// RedirectList is the ordered list of redirects. Order is kept so relayed
// output is deterministic.
type RedirectList []Redirect

func (l *RedirectList) UnmarshalJSON(data []byte) error {
	if !isJSONValue(data) {
		*l = nil
		return nil
	}
	if bytes.TrimSpace(data)[0] != '[' {
		return errRedirectsNotArray
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(RedirectList, len(items))
	for i, item := range items {
		if err := json.Unmarshal(item, &out[i]); err != nil {
			return fmt.Errorf("redirects[%d]: %w", i, err)
		}
	}
	*l = out
	return nil
}

func (l *RedirectList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return errRedirectsNotArray
	}
	out := make(RedirectList, len(node.Content))
	for i, item := range node.Content {
		if err := item.Decode(&out[i]); err != nil {
			return fmt.Errorf("redirects[%d]: %w", i, err)
		}
	}
	*l = out
	return nil
}

// IDList is an ordered set of Discord snowflakes. It decodes from arrays of
// strings or integers; integers are kept verbatim so 64-bit IDs are never
// rounded through float64.
type IDList []string

// Contains reports whether id is a member.
func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

func (l IDList) dedupe() IDList {
	if len(l) == 0 {
		return l
	}
	seen := make(map[string]struct{}, len(l))
	out := make(IDList, 0, len(l))
	for _, id := range l {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (l *IDList) UnmarshalJSON(data []byte) error {
	return l.decodeJSON(data)
}

func (l *IDList) decodeJSON(data []byte) error {
	if !isJSONValue(data) {
		*l = nil
		return nil
	}
	if bytes.TrimSpace(data)[0] != '[' {
		return errNotArray
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(IDList, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return err
			}
			out = append(out, s)
			continue
		}
		if _, err := strconv.ParseUint(string(item), 10, 64); err != nil {
			return fmt.Errorf("invalid ID %s", item)
		}
		out = append(out, string(item))
	}
	*l = out
	return nil
}

func (l *IDList) UnmarshalYAML(node *yaml.Node) error {
	return l.decodeYAML(node)
}

func (l *IDList) decodeYAML(node *yaml.Node) error {
	if node.Kind == 0 || node.Tag == "!!null" {
		*l = nil
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		return errNotArray
	}
	out := make(IDList, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("invalid ID at line %d", item.Line)
		}
		out = append(out, item.Value)
	}
	*l = out
	return nil
}

// isJSONValue reports whether data holds something other than null or nothing.
func isJSONValue(data []byte) bool {
	data = bytes.TrimSpace(data)
	return len(data) > 0 && !bytes.Equal(data, []byte("null"))
}
