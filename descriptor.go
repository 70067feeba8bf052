package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
)

// RequestDescription describes one registered thunk.
type RequestDescription struct {
	RequestType string `json:"requestType"`
	ResultType  string `json:"resultType,omitempty"`
	Origin      string `json:"origin"`
	Async       bool   `json:"async"`
}

// HandlerDescription describes one handler type and the requests it registers.
type HandlerDescription struct {
	Package  string               `json:"package"`
	Name     string               `json:"name"`
	Requests []RequestDescription `json:"requests"`
}

// DescriptorSection lists the handlers found for one marker.
type DescriptorSection struct {
	Marker   Marker               `json:"marker"`
	Handlers []HandlerDescription `json:"handlers"`
}

// RequestCount is the number of thunks across all handlers of the section.
func (s DescriptorSection) RequestCount() int {
	n := 0
	for _, h := range s.Handlers {
		n += len(h.Requests)
	}
	return n
}

// Descriptor is a snapshot of the handlers a source exposed when it was
// discovered. Dispatch never consults it.
type Descriptor struct {
	sections []DescriptorSection
}

// Discover resolves every marker once and records the registries of the
// handlers found. All markers are discovered when none are given.
func Discover(ctx context.Context, source HandlerSource, markers ...Marker) (*Descriptor, error) {
	if len(markers) == 0 {
		markers = Markers()
	}
	d := &Descriptor{}
	for _, marker := range markers {
		if !marker.valid() {
			return nil, fmt.Errorf("%w: unknown marker %q", ErrInvalidHandler, marker)
		}
		handlers, err := source.Resolve(ctx, marker)
		if err != nil {
			return nil, err
		}

		section := DescriptorSection{Marker: marker}
		seen := make(map[reflect.Type]bool)
		for _, h := range handlers {
			t := reflect.TypeOf(h)
			if seen[t] {
				continue
			}
			seen[t] = true

			registry, err := RegistryOf(marker, h)
			if err != nil {
				return nil, err
			}
			section.Handlers = append(section.Handlers, describeHandler(t, registry))
		}
		d.sections = append(d.sections, section)
	}
	return d, nil
}

func describeHandler(t reflect.Type, registry *Registry) HandlerDescription {
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	desc := HandlerDescription{
		Package: base.PkgPath(),
		Name:    shortTypeName(t),
	}
	for _, thunk := range registry.Thunks() {
		rd := RequestDescription{
			RequestType: typeName(thunk.RequestType()),
			Origin:      thunk.Origin(),
			Async:       thunk.Async(),
		}
		if thunk.ResultType() != nil {
			rd.ResultType = typeName(thunk.ResultType())
		}
		desc.Requests = append(desc.Requests, rd)
	}
	return desc
}

// Sections returns a copy of every discovered section.
func (d *Descriptor) Sections() []DescriptorSection {
	return slices.Clone(d.sections)
}

func (d *Descriptor) Section(marker Marker) (DescriptorSection, bool) {
	for _, s := range d.sections {
		if s.Marker == marker {
			return s, true
		}
	}
	return DescriptorSection{}, false
}

// Counts returns the number of handler types and thunks found for marker.
func (d *Descriptor) Counts(marker Marker) (handlers, requests int) {
	s, ok := d.Section(marker)
	if !ok {
		return 0, 0
	}
	return len(s.Handlers), s.RequestCount()
}

// String renders the report written at startup.
func (d *Descriptor) String() string {
	var b strings.Builder
	for _, s := range d.sections {
		if len(s.Handlers) == 0 {
			continue
		}
		header := fmt.Sprintf("Discovered %d %s implementations covering a total of %d %s methods",
			len(s.Handlers), s.Marker, s.RequestCount(), s.Marker.Family())
		b.WriteString(header)
		b.WriteString("\n")

		var packages []string
		byPackage := make(map[string][]HandlerDescription)
		for _, h := range s.Handlers {
			if _, ok := byPackage[h.Package]; !ok {
				packages = append(packages, h.Package)
			}
			byPackage[h.Package] = append(byPackage[h.Package], h)
		}
		for _, pkg := range packages {
			fmt.Fprintf(&b, "\nPackage: %s\n\n", pkg)
			for _, h := range byPackage[pkg] {
				fmt.Fprintf(&b, "<%s>\n", h.Name)
				requests := slices.Clone(h.Requests)
				slices.SortStableFunc(requests, func(a, b RequestDescription) int {
					return strings.Compare(strings.ToLower(a.Origin), strings.ToLower(b.Origin))
				})
				for _, r := range requests {
					fmt.Fprintf(&b, "\t*%s --> &%s\n", shortName(r.RequestType), r.Origin)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString(strings.Repeat("-", len(header)))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return jsonAPI.Marshal(d.sections)
}

// LogValue reports per marker counts so the descriptor can be passed to slog directly.
func (d *Descriptor) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(d.sections))
	for _, s := range d.sections {
		attrs = append(attrs, slog.Group(string(s.Marker),
			slog.Int("handlers", len(s.Handlers)),
			slog.Int("requests", s.RequestCount()),
		))
	}
	return slog.GroupValue(attrs...)
}

// shortName drops the package path from a type name produced by typeName.
func shortName(name string) string {
	prefix := ""
	if strings.HasPrefix(name, "*") {
		prefix, name = "*", strings.TrimLeft(name, "*")
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return prefix + name
}
