package aggregator

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type ReportFormat string

const (
	ReportFormat_Text ReportFormat = "text"
	ReportFormat_Json ReportFormat = "json"
	ReportFormat_Csv  ReportFormat = "csv"

	ethPlaces = 6
)

func ParseReportFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case ReportFormat_Text, ReportFormat_Json, ReportFormat_Csv:
		return f, nil
	}
	return "", errors.Errorf("unsupported report format '%s'", s)
}

func formatEth(d decimal.Decimal) string {
	return d.StringFixed(ethPlaces)
}

// nodeCsvRow is one line of the per node CSV export.
type nodeCsvRow struct {
	Node             string `csv:"node"`
	TotalProposals   string `csv:"total_proposals"`
	TotalWithdrawals string `csv:"total_withdrawals"`
	TotalExits       string `csv:"total_exits"`
	Total            string `csv:"total"`
}

func Render(w io.Writer, s *Summary, format ReportFormat) error {
	switch format {
	case ReportFormat_Text:
		_, err := io.WriteString(w, RenderText(s))
		return err
	case ReportFormat_Json:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case ReportFormat_Csv:
		return RenderCsv(w, s)
	}
	return errors.Errorf("unsupported report format '%s'", format)
}

// RenderText renders the earnings summary followed by one line per node.
func RenderText(s *Summary) string {
	var b strings.Builder
	if s.ToEpoch > 0 {
		fmt.Fprintf(&b, "Earnings Summary (epochs %d-%d):\n", s.FromEpoch, s.ToEpoch)
	} else {
		b.WriteString("Earnings Summary:\n")
	}
	fmt.Fprintf(&b, "Total Proposals: %s\n", formatEth(s.TotalProposals))
	fmt.Fprintf(&b, "Total Withdrawals: %s\n", formatEth(s.TotalWithdrawals))
	fmt.Fprintf(&b, "Grand Total: %s\n", formatEth(s.GrandTotal))
	if s.ExitCount > 0 {
		fmt.Fprintf(&b, "Total Exits: %s (%d)\n", formatEth(s.TotalExits), s.ExitCount)
	}
	fmt.Fprintf(&b, "Validators: %d, Records: %d\n", s.ValidatorCount, s.RecordCount)

	b.WriteString("\nCombined Summary:\n")
	for pair := s.PerNode.Oldest(); pair != nil; pair = pair.Next() {
		t := pair.Value
		fmt.Fprintf(&b, "Node: %s, Total Proposals: %s, Total Withdrawals: %s", t.Node, formatEth(t.Proposals), formatEth(t.Withdrawals))
		if t.Exits.IsPositive() {
			fmt.Fprintf(&b, ", Total Exits: %s", formatEth(t.Exits))
		}
		b.WriteString("\n")
	}

	if r := s.Returns; r != nil {
		b.WriteString("\nReturn Analysis:\n")
		fmt.Fprintf(&b, "Total Investment: %s ETH\n", r.TotalInvestment.String())
		fmt.Fprintf(&b, "Rate of Return: %s%%\n", r.RateOfReturn.StringFixed(4))
		fmt.Fprintf(&b, "Annualized Rate: %s%% over %d days\n", r.AnnualizedRate.StringFixed(4), r.DurationDays)
	}
	return b.String()
}

func RenderCsv(w io.Writer, s *Summary) error {
	rows := make([]*nodeCsvRow, 0, s.PerNode.Len())
	for pair := s.PerNode.Oldest(); pair != nil; pair = pair.Next() {
		t := pair.Value
		rows = append(rows, &nodeCsvRow{
			Node:             t.Node,
			TotalProposals:   formatEth(t.Proposals),
			TotalWithdrawals: formatEth(t.Withdrawals),
			TotalExits:       formatEth(t.Exits),
			Total:            formatEth(t.Proposals.Add(t.Withdrawals)),
		})
	}
	if len(rows) == 0 {
		_, err := io.WriteString(w, "node,total_proposals,total_withdrawals,total_exits,total\n")
		return err
	}
	return gocsv.Marshal(rows, w)
}
