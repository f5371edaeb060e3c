// Package output provides utilities for formatting and displaying fit and
// sampling results.
package output

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/astrokit/orbitfit/internal/fit"
	"github.com/astrokit/orbitfit/internal/mcmc"
	"github.com/astrokit/orbitfit/pkg/params"
)

// FormatFitResult renders a human-readable parameter report for a fit.
func FormatFitResult(res *fit.Result) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	b.WriteString("--- Best-fit orbital parameters ---\n")
	b.WriteString("parameter |          value |        1-sigma\n")
	b.WriteString("_________ | ______________ | ______________\n")
	vec := res.Params.Vector()
	for s := params.Slot(0); s < params.NumSlots; s++ {
		if sigma, ok := res.Uncertainties[s]; ok {
			b.WriteString(p.Sprintf("%9s | %14.6f | %14.6f\n", s.String(), vec[s], sigma))
		} else {
			b.WriteString(p.Sprintf("%9s | %14.6f |        (fixed)\n", s.String(), vec[s]))
		}
	}
	b.WriteString(p.Sprintf("\nchi-squared         = %.6f\n", res.ChiSquared))
	b.WriteString(p.Sprintf("reduced chi-squared = %.6f\n", res.ReducedChiSq))
	b.WriteString(p.Sprintf("degrees of freedom  = %d\n", res.Dof))
	b.WriteString(p.Sprintf("iterations          = %d\n", res.Iterations))
	if res.RMSRV1 > 0 {
		b.WriteString(p.Sprintf("rms primary RV      = %.6f km/s\n", res.RMSRV1))
	}
	if res.RMSRV2 > 0 {
		b.WriteString(p.Sprintf("rms secondary RV    = %.6f km/s\n", res.RMSRV2))
	}
	if res.RMSAS > 0 {
		b.WriteString(p.Sprintf("rms astrometry      = %.6f mas\n", res.RMSAS))
	}
	return b.String()
}

// FormatDerived renders the derived physical quantities, sorted by name.
func FormatDerived(quantities map[string]float64) string {
	if len(quantities) == 0 {
		return ""
	}
	p := message.NewPrinter(language.English)
	var b strings.Builder
	b.WriteString("--- Derived quantities ---\n")
	for _, name := range sortedKeys(quantities) {
		b.WriteString(p.Sprintf("%-14s = %.6f\n", name, quantities[name]))
	}
	return b.String()
}

// FormatMCMC renders the posterior percentile summary.
func FormatMCMC(res *mcmc.Result) string {
	p := message.NewPrinter(language.English)
	var b strings.Builder
	b.WriteString("--- MCMC posterior percentiles ---\n")
	b.WriteString("parameter |           16th |           50th |           84th\n")
	b.WriteString("_________ | ______________ | ______________ | ______________\n")
	for _, s := range res.FreeSlots {
		pc := res.Percentiles[s]
		b.WriteString(p.Sprintf("%9s | %14.6f | %14.6f | %14.6f\n",
			s.String(), pc.P16, pc.P50, pc.P84))
	}
	b.WriteString(p.Sprintf("\nacceptance rate = %.3f\n", res.AcceptanceRate))
	return b.String()
}

// ChainCSV renders the full chain in comma-separated form: one row per
// walker per step, for external plotting tools.
func ChainCSV(res *mcmc.Result) string {
	var b strings.Builder
	b.WriteString(`"step","walker"`)
	for _, s := range res.FreeSlots {
		fmt.Fprintf(&b, `,"%s"`, s.String())
	}
	b.WriteString("\n")
	for step, walkers := range res.Chain {
		for w, x := range walkers {
			fmt.Fprintf(&b, "%d,%d", step, w)
			for _, v := range x {
				fmt.Fprintf(&b, ",%.10g", v)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// PrettyFormat prints the pretty report for a complete run.
func PrettyFormat(res *fit.Result, derived map[string]float64, sample *mcmc.Result) {
	fmt.Print(FormatFitResult(res))
	if s := FormatDerived(derived); s != "" {
		fmt.Printf("\n%s", s)
	}
	if sample != nil {
		fmt.Printf("\n%s", FormatMCMC(sample))
	}
}

// CsvFormat prints the parameter table in comma-separated value format.
func CsvFormat(res *fit.Result) {
	fmt.Printf(`"parameter","value","sigma","free"` + "\n")
	vec := res.Params.Vector()
	for s := params.Slot(0); s < params.NumSlots; s++ {
		sigma, free := res.Uncertainties[s]
		fmt.Printf(`"%s",%.10g,%.10g,%t`+"\n", s.String(), vec[s], sigma, free)
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
