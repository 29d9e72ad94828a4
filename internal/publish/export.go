package publish

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Exporter renders a run report to an output format.
type Exporter interface {
	Export(report *Report) ([]byte, error)
	Name() string
}

// NewExporter returns the exporter for a format name: json, yaml or text.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &jsonExporter{}, nil
	case "yaml":
		return &yamlExporter{}, nil
	case "text", "":
		return &textExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

type jsonExporter struct{}

func (e *jsonExporter) Name() string { return "json" }

func (e *jsonExporter) Export(report *Report) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

type yamlExporter struct{}

func (e *yamlExporter) Name() string { return "yaml" }

func (e *yamlExporter) Export(report *Report) ([]byte, error) {
	return yaml.Marshal(report)
}

type textExporter struct{}

func (e *textExporter) Name() string { return "text" }

func (e *textExporter) Export(report *Report) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "registry: %s\n", report.Registry)
	for _, result := range report.Results {
		switch result.Status {
		case StatusSkipped:
			fmt.Fprintf(&b, "  %-24s %s (%s)\n", result.Service, result.Status, result.Reason)
		case StatusFailed:
			fmt.Fprintf(&b, "  %-24s %s: %s\n", result.Service, result.Status, result.Reason)
		default:
			fmt.Fprintf(&b, "  %-24s %s %s\n", result.Service, result.Status, result.Reference)
		}
	}
	fmt.Fprintf(&b, "%d published, %d skipped\n", report.Published(), report.Skipped())
	return []byte(b.String()), nil
}
