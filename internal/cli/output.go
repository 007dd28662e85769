package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"
)

const (
	jsonFormat = "json"
	yamlFormat = "yaml"
)

var (
	legalOutputTypes = []string{jsonFormat, yamlFormat}
)

type OutputOptions struct {
	Output string
}

func (o *OutputOptions) validateOutput() error {
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	return nil
}

func outputUsage() string {
	return fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", "))
}

// print writes v in the requested format, falling back to table.
func (o *OutputOptions) print(w io.Writer, v any, table func(*tabwriter.Writer)) error {
	switch o.Output {
	case jsonFormat:
		marshalled, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "marshalling resource")
		}
		fmt.Fprintf(w, "%s\n", string(marshalled))
	case yamlFormat:
		marshalled, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "marshalling resource")
		}
		fmt.Fprintf(w, "%s", string(marshalled))
	default:
		tw := tabwriter.NewWriter(w, 0, 8, 1, '\t', 0)
		table(tw)
		return tw.Flush()
	}
	return nil
}

func printJobsTable(w *tabwriter.Writer, jobs ...api.Job) {
	fmt.Fprintln(w, "ID\tPROVIDER\tSTATUS\tPROGRESS\tOUTPUTS\tPROMPT")
	for _, j := range jobs {
		progress := "-"
		if j.ProgressPct != nil {
			progress = fmt.Sprintf("%d%%", *j.ProgressPct)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", j.Id, j.Provider, j.Status, progress, len(j.Outputs), truncate(j.Prompt, 48))
	}
}

func printProvidersTable(w *tabwriter.Writer, providers ...api.ProviderInfo) {
	fmt.Fprintln(w, "ID\tLABEL\tMODEL\tMODES\tREMIX\tEXTEND\tSTUB")
	for _, p := range providers {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\t%t\n", p.Id, p.Label, p.DefaultModel, strings.Join(p.SupportedModes, ","), p.Capabilities.Remix, p.Capabilities.Extend, p.Stub)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
