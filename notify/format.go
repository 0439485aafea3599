package notify

import (
	"fmt"
	"strings"
	"time"

	"inventory_watch/config"
	"inventory_watch/models"
)

const (
	maxSMSVehicles = 2
	maxSMSLength   = 1500
)

func formatVehicle(v models.LedgerEntry) string {
	var lines []string
	lines = append(lines, v.Title)
	if v.Price != nil {
		lines = append(lines, "Price: "+*v.Price)
	}
	if v.VIN != nil {
		lines = append(lines, "VIN: "+*v.VIN)
	}
	if v.Dealership != "" {
		lines = append(lines, fmt.Sprintf("At: %s (%s, %s)", v.Dealership, v.Location, v.InventoryKind))
	}
	if v.URL != "" {
		lines = append(lines, "View: "+v.URL)
	}
	return strings.Join(lines, "\n")
}

// FormatSMS renders a short message: full detail for one vehicle, a capped
// list for several.
func FormatSMS(vehicles []models.LedgerEntry, now time.Time) string {
	var b strings.Builder
	switch len(vehicles) {
	case 0:
		return ""
	case 1:
		b.WriteString("NEW MATCH FOUND!\n\n")
		b.WriteString(formatVehicle(vehicles[0]))
		b.WriteString("\n")
	default:
		fmt.Fprintf(&b, "%d NEW MATCHES!\n\n", len(vehicles))
		for i, v := range vehicles {
			if i == maxSMSVehicles {
				fmt.Fprintf(&b, "+ %d more matches!\n", len(vehicles)-maxSMSVehicles)
				break
			}
			fmt.Fprintf(&b, "#%d %s\n", i+1, v.Title)
			if v.Price != nil {
				fmt.Fprintf(&b, "Price: %s\n", *v.Price)
			}
			if v.URL != "" {
				fmt.Fprintf(&b, "View: %s\n", v.URL)
			}
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "\n%s", now.Format("01/02 03:04PM"))
	return truncate(b.String(), maxSMSLength)
}

// FormatNoMatches renders the periodic "nothing new" message.
func FormatNoMatches(info NoMatches, now time.Time) string {
	var b strings.Builder
	b.WriteString("Inventory Watch - No New Matches\n\n")
	fmt.Fprintf(&b, "No NEW %s vehicles found matching:\n", describeModels(info.Criteria))
	if len(info.Criteria.Trims) > 0 {
		fmt.Fprintf(&b, "- %s trim\n", strings.Join(info.Criteria.Trims, "/"))
	}
	if attrs := strings.TrimSpace(info.Criteria.Color + " " + info.Criteria.BodyStyle); attrs != "" {
		fmt.Fprintf(&b, "- %s\n", attrs)
	}
	if info.Criteria.MinYear > 0 {
		fmt.Fprintf(&b, "- %d or newer\n", info.Criteria.MinYear)
	}
	if len(info.SearchLinks) > 0 {
		fmt.Fprintf(&b, "\nCheck inventory: %s\n", info.SearchLinks[0])
	}
	fmt.Fprintf(&b, "\n%s", now.Format("01/02 03:04PM"))
	return truncate(b.String(), maxSMSLength)
}

func describeModels(c config.CriteriaConfig) string {
	if len(c.Models) == 0 {
		return c.Make
	}
	return c.Make + " " + strings.Join(c.Models, "/")
}

func Subject(vehicles []models.LedgerEntry) string {
	if len(vehicles) == 1 {
		return "New match: " + vehicles[0].Title
	}
	return fmt.Sprintf("%d new inventory matches", len(vehicles))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
