package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"leboncoin-scraper/models"
	"leboncoin-scraper/utils"
)

// InsightService summarizes the records saved by a run.
type InsightService struct {
	logger *utils.Logger
	out    io.Writer
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger, out: os.Stdout}
}

func (s *InsightService) Generate(listings []*models.ListingRecord) *models.InsightReport {
	report := &models.InsightReport{
		ListingsByCity: make(map[string]int),
		ListingsByType: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	agencies := make(map[string]struct{})
	var total float64
	for _, l := range listings {
		if l.City != nil && *l.City != "" {
			report.ListingsByCity[*l.City]++
		}
		if l.PropertyType != nil && *l.PropertyType != "" {
			report.ListingsByType[*l.PropertyType]++
		}
		if l.AgencyName != nil && *l.AgencyName != "" {
			agencies[*l.AgencyName] = struct{}{}
		}

		// Price stats (only listings with a price)
		if l.Price == nil || *l.Price <= 0 {
			continue
		}
		price := *l.Price
		if report.PricedListings == 0 || price < report.MinPrice {
			report.MinPrice = price
		}
		if report.PricedListings == 0 || price > report.MaxPrice {
			report.MaxPrice = price
			report.MostExpensive = l
		}
		report.PricedListings++
		total += price
	}
	report.AgenciesCovered = len(agencies)

	if report.PricedListings > 0 {
		report.AveragePrice = round2(total / float64(report.PricedListings))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	return report
}

func (s *InsightService) Print(r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)
	w := s.out

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 LEBONCOIN RUN INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Listings saved    : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  With a price      : \033[1m%d\033[0m\n", r.PricedListings)
	fmt.Fprintf(w, "  Agencies covered  : \033[1m%d\033[0m\n\n", r.AgenciesCovered)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m%.2f €\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m%.2f €\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m%.2f €\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if m := r.MostExpensive; m != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(deref(m.Title), 50))
		fmt.Fprintf(w, "  City  : %s\n", deref(m.City))
		fmt.Fprintf(w, "  Price : \033[1;31m%.2f €\033[0m\n\n", *m.Price)
	}

	printCounts(w, "Listings by City", thin, r.ListingsByCity)
	printCounts(w, "Listings by Property Type", thin, r.ListingsByType)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
	s.logger.Info("[insights] %d listings, %d priced, average %.2f €", r.TotalListings, r.PricedListings, r.AveragePrice)
}

// printCounts prints a bar per key, largest count first.
func printCounts(w io.Writer, title, thin string, counts map[string]int) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}
	type keyCount struct {
		key   string
		count int
	}
	var rows []keyCount
	for k, c := range counts {
		rows = append(rows, keyCount{k, c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].key < rows[j].key
	})
	for _, row := range rows {
		bar := strings.Repeat("█", row.count)
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(row.key, 28), bar, row.count)
	}
	fmt.Fprintln(w)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func deref(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}
